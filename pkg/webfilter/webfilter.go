package webfilter

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

const loopback = "127.0.0.1"

// Filter edits the OS hosts file to redirect blocked domains to loopback.
// Each blocked domain is a pair of lines, the bare domain and its "www."
// form. The file itself is the store; there is no separate table.
//
// Every operation is idempotent: blocking a blocked domain or unblocking
// an absent one leaves the file unchanged. Any read/write failure is
// returned to the caller, never swallowed, because a failed edit means the
// blocklist state is unknown.
type Filter struct {
	path   string
	logger *zap.Logger
}

// DefaultHostsPath returns the hosts file location for the current OS
func DefaultHostsPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Windows\System32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

// New creates a filter over the hosts file at path; an empty path selects
// the OS default location
func New(path string, logger *zap.Logger) *Filter {
	if path == "" {
		path = DefaultHostsPath()
	}
	return &Filter{path: path, logger: logger}
}

// Normalize reduces a raw URL or domain to its canonical form: trimmed,
// lowercased, scheme and path stripped, leading "www." removed. Equivalent
// URL forms collapse to one domain.
func Normalize(raw string) string {
	domain := strings.ToLower(strings.TrimSpace(raw))

	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")

	if i := strings.IndexByte(domain, '/'); i != -1 {
		domain = domain[:i]
	}

	domain = strings.TrimPrefix(domain, "www.")
	return domain
}

// Block adds the loopback entry pair for a domain unless already present
func (f *Filter) Block(rawDomain string) error {
	domain := Normalize(rawDomain)
	if domain == "" {
		return fmt.Errorf("cannot block empty domain from %q", rawDomain)
	}

	lines, err := f.readLines()
	if err != nil {
		return err
	}

	bare, www := entryPair(domain)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == bare || trimmed == www {
			f.logger.Debug("domain already blocked", zap.String("domain", domain))
			return nil
		}
	}

	lines = append(lines, bare, www)
	if err := f.writeLines(lines); err != nil {
		return err
	}
	f.logger.Info("domain blocked", zap.String("domain", domain))
	return nil
}

// Unblock removes both entry lines for a domain; absent entries are a no-op
func (f *Filter) Unblock(rawDomain string) error {
	return f.UnblockAll([]string{rawDomain})
}

// UnblockAll removes the entry lines of every given domain in a single
// rewrite of the file
func (f *Filter) UnblockAll(rawDomains []string) error {
	remove := make(map[string]bool, len(rawDomains)*2)
	for _, raw := range rawDomains {
		domain := Normalize(raw)
		if domain == "" {
			continue
		}
		bare, www := entryPair(domain)
		remove[bare] = true
		remove[www] = true
	}
	if len(remove) == 0 {
		return nil
	}

	lines, err := f.readLines()
	if err != nil {
		return err
	}

	kept := lines[:0]
	removed := 0
	for _, line := range lines {
		if remove[strings.TrimSpace(line)] {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return nil
	}

	if err := f.writeLines(kept); err != nil {
		return err
	}
	f.logger.Info("domains unblocked", zap.Int("lines_removed", removed))
	return nil
}

func entryPair(domain string) (string, string) {
	return loopback + " " + domain, loopback + " www." + domain
}

func (f *Filter) readLines() ([]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hosts file %s: %w", f.path, err)
	}
	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

func (f *Filter) writeLines(lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(f.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write hosts file %s: %w", f.path, err)
	}
	return nil
}
