// Package version reports the build version and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	goversion "github.com/hashicorp/go-version"
)

// AppVersion is set at build time with -ldflags "-X .../internal/version.AppVersion=v1.2.3".
var AppVersion = "v0.0.0"

const DefaultReleaseURL = "https://api.github.com/repos/nulzo/capability-router/releases/latest"

type release struct {
	TagName string `json:"tag_name"`
}

// Update describes the result of a release check.
type Update struct {
	Current  string
	Latest   string
	Outdated bool
}

// Check compares current against the latest release published at url.
func Check(ctx context.Context, client *http.Client, url, current string) (Update, error) {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Update{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return Update{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Update{}, fmt.Errorf("release check returned status %d", resp.StatusCode)
	}

	var r release
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Update{}, fmt.Errorf("decode release: %w", err)
	}

	cur, err := goversion.NewVersion(current)
	if err != nil {
		return Update{}, fmt.Errorf("parse current version %q: %w", current, err)
	}
	latest, err := goversion.NewVersion(r.TagName)
	if err != nil {
		return Update{}, fmt.Errorf("parse latest version %q: %w", r.TagName, err)
	}

	return Update{
		Current:  current,
		Latest:   r.TagName,
		Outdated: cur.LessThan(latest),
	}, nil
}
