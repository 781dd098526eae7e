// Package security provides input validation for user-supplied usernames,
// remote media URLs, and scratch storage paths.
package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidUsername is returned for usernames that are empty or contain disallowed characters.
var ErrInvalidUsername = errors.New("invalid username")

// MaxUsernameLength is the longest username accepted.
const MaxUsernameLength = 30

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]+$`)

// NormalizeUsername trims surrounding whitespace and a leading "@".
func NormalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// ValidateUsername checks a (normalised) account name: 1-30 characters of
// letters, digits, '.' and '_', without consecutive or edge dots.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username required", ErrInvalidUsername)
	}
	if len(username) > MaxUsernameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUsername, MaxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: only letters, digits, '.' and '_' are allowed", ErrInvalidUsername)
	}
	if strings.HasPrefix(username, ".") || strings.HasSuffix(username, ".") || strings.Contains(username, "..") {
		return fmt.Errorf("%w: misplaced '.'", ErrInvalidUsername)
	}
	return nil
}

// ValidateHTTPURL validates an HTTP(S) URL for safe downloads.
// Unless allowPrivate is set, only HTTPS URLs to non-local hosts are accepted.
func ValidateHTTPURL(urlStr string, allowPrivate bool) error {
	if urlStr == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" && (scheme != "http" || !allowPrivate) {
		return fmt.Errorf("only HTTPS URLs are allowed (got %s)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	// Block localhost and private IPs to prevent SSRF
	if !allowPrivate && isLocalOrPrivateHost(strings.ToLower(parsed.Hostname())) {
		return fmt.Errorf("URL cannot point to local or private hosts: %s", parsed.Hostname())
	}

	return nil
}

// ValidateFilePath validates a relative path to prevent directory traversal.
func ValidateFilePath(filePath, baseDir string) error {
	if filePath == "" {
		return fmt.Errorf("empty file path")
	}

	if strings.Contains(filePath, "..") {
		return fmt.Errorf("file path contains directory traversal (..) - not allowed")
	}

	if filepath.IsAbs(filePath) {
		return fmt.Errorf("absolute paths are not allowed")
	}

	// Ensure the final path would be within baseDir
	cleanFinal := filepath.Clean(filepath.Join(baseDir, filePath))
	cleanBase := filepath.Clean(baseDir)

	if !strings.HasPrefix(cleanFinal, cleanBase+string(filepath.Separator)) &&
		cleanFinal != cleanBase {
		return fmt.Errorf("file path would escape base directory")
	}

	return nil
}

// isLocalOrPrivateHost checks if a hostname is localhost or a private IP.
func isLocalOrPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
