package job

import (
	"sync"

	"go.uber.org/zap"
)

// Summary aggregates the outcome of a batch run. Item-scoped failures never
// abort sibling items or jobs; they only show up here and in the exit code.
type Summary struct {
	mu sync.Mutex

	Downloaded int
	Skipped    int
	Filtered   int
	Failed     int
	Unmatched  int
	JobErrors  int
	Cancelled  bool
}

func (s *Summary) addDownloaded() { s.mu.Lock(); s.Downloaded++; s.mu.Unlock() }
func (s *Summary) addSkipped()    { s.mu.Lock(); s.Skipped++; s.mu.Unlock() }
func (s *Summary) addFiltered()   { s.mu.Lock(); s.Filtered++; s.mu.Unlock() }
func (s *Summary) addFailed()     { s.mu.Lock(); s.Failed++; s.mu.Unlock() }
func (s *Summary) addUnmatched()  { s.mu.Lock(); s.Unmatched++; s.mu.Unlock() }
func (s *Summary) addJobError()   { s.mu.Lock(); s.JobErrors++; s.mu.Unlock() }

// ExitCode is 0 only when every input resolved and every item succeeded.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 || s.Unmatched > 0 || s.JobErrors > 0 || s.Cancelled {
		return 1
	}
	return 0
}

// Log emits the end-of-run summary line.
func (s *Summary) Log() {
	zap.L().Info("run complete",
		zap.Int("downloaded", s.Downloaded),
		zap.Int("skipped", s.Skipped),
		zap.Int("filtered", s.Filtered),
		zap.Int("failed", s.Failed),
		zap.Int("unmatched", s.Unmatched),
		zap.Int("job_errors", s.JobErrors),
		zap.Bool("cancelled", s.Cancelled),
	)
}
