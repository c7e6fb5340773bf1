package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
)

// persistToken writes OAuth tokens into the user's primary option file
// under extractor.<category>[.<instance>], creating the file if needed.
func persistToken(category, instance string, token *oauth2.Token) error {
	path := tokenConfigPath()

	root := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &root); err != nil {
			return eris.Wrapf(err, "parse %s", path)
		}
	} else if !os.IsNotExist(err) {
		return eris.Wrapf(err, "read %s", path)
	}

	node := descend(root, "extractor", category)
	if instance != "" {
		node = descend(node, instance)
	}
	node["access-token"] = token.AccessToken
	if token.RefreshToken != "" {
		node["refresh-token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		node["token-expiry"] = token.Expiry.UTC().Format("2006-01-02T15:04:05Z")
	}

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create %s", filepath.Dir(path))
	}
	return eris.Wrapf(os.WriteFile(path, append(data, '\n'), 0o600), "write %s", path)
}

// descend walks (creating as needed) nested maps along the given keys.
func descend(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	return m
}

func tokenConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gallery-dl.conf"
	}
	return filepath.Join(home, ".config", "gallery-dl", "config.json")
}
