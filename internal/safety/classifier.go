// Package safety classifies shell commands into execution tiers.
//
// The classifier is a security boundary: it is strictly deterministic,
// pattern-based, and never consults a model. Every pattern below must be
// auditable line by line.
package safety

import (
	"regexp"
	"strings"
)

// Tier is the safety decision for a tool invocation.
type Tier string

const (
	// TierAuto marks read-only operations that execute without confirmation.
	TierAuto Tier = "auto"

	// TierConfirm marks mutating operations that require a human to confirm.
	TierConfirm Tier = "confirm"

	// TierBlocked marks destructive operations that are never executed.
	TierBlocked Tier = "blocked"
)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// blockedPatterns: any match anywhere in the command blocks it outright.
var blockedPatterns = compileAll([]string{
	// Recursive deletion
	`rm\s+-[rf]*r[rf]*\s`,
	`rm\s+--recursive`,
	// Privilege escalation
	`\bsudo\b`,
	`\bsu\s+-`,
	`\bdoas\b`,
	// Pipe network content to an interpreter
	`curl[^|]*\|[^|]*\b(bash|sh|zsh|fish|python|perl|ruby)\b`,
	`wget[^|]*\|[^|]*\b(bash|sh|zsh|fish|python|perl|ruby)\b`,
	`\|[^|]*\b(bash|sh|zsh|fish)\b\s*$`,
	// Command substitution hiding destructive commands
	`\$\([^)]*\brm\b`,
	`\$\([^)]*\bkill\b`,
	"`[^`]*\\brm\\b",
	// Chain operators followed by destructive commands
	`[;&|]\s*rm\s+`,
	`[;&|]\s*sudo\b`,
	`[;&|]\s*mkfs\b`,
	// Writes to protected paths
	`>\s*/etc/`,
	`>\s*/dev/(sda|hda|nvme|sd[a-z])`,
	`>\s*/boot/`,
	`>>\s*/etc/passwd`,
	`>>\s*/etc/shadow`,
	`>>\s*/etc/sudoers`,
	// Fork bombs
	`:\s*\(\s*\)\s*\{`,
	`while\s+true\s*;\s*do\s+.*fork`,
	// Block device operations
	`\bdd\s+if=/dev/zero`,
	`\bdd\s+if=/dev/urandom.*of=/dev/`,
	`\bmkfs\b`,
	`\bfdisk\b`,
	`\bparted\b`,
	// Broad permission changes on system roots
	`chmod\s+[0-7]*[02467][0-7]*\s+/`,
	`chmod\s+777\s+/(etc|bin|sbin|usr|boot)`,
	// Netcat piped to a shell
	`\bnc\s.*\|\s*(bash|sh)`,
	// Secret material
	`\b(cat|cp|mv|echo)\s+.*/(\.ssh/id_rsa|\.ssh/id_ed25519|\.env)`,
	// Encoded payload piped to a shell
	`base64\s+-d[^|]*\|[^|]*\b(bash|sh)\b`,
})

// autoPatterns: allowlist of read-only command heads. Anchored at the start
// of the command.
var autoPatterns = compileAll([]string{
	`^ls(\s|$)`,
	`^ls\s+(-[lha]+\s+)*[\w./~\s-]*$`,
	`^cat\s+`,
	`^head\s+`,
	`^tail\s+`,
	`^grep\s+`,
	`^egrep\s+`,
	`^find\s+`,
	`^ps\s`,
	`^ps$`,
	`^pgrep\s+`,
	`^top\s+-b`,
	`^htop\s+-C`,
	`^df\s`,
	`^df$`,
	`^du\s`,
	`^free\s`,
	`^free$`,
	`^uptime$`,
	`^uname\s`,
	`^uname$`,
	`^echo\s+`,
	`^printf\s+`,
	`^date$`,
	`^date\s`,
	`^whoami$`,
	`^id$`,
	`^pwd$`,
	`^env$`,
	`^printenv\s`,
	`^which\s+`,
	`^type\s+`,
	`^wc\s+`,
	`^sort\s+`,
	`^uniq\s+`,
	`^cut\s+`,
	`^awk\s+`,
	`^sed\s+-n\s+`,
	`^diff\s+`,
	`^git\s+(status|log|diff|show|branch|remote|fetch|stash\s+list)`,
	`^docker\s+(ps|images|logs|inspect|stats|info|version)`,
	`^docker-compose\s+(ps|logs)`,
	`^systemctl\s+(status|list-units|is-active|is-enabled)`,
	`^journalctl\s+`,
	`^netstat\s+`,
	`^ss\s+`,
	`^ip\s+(addr|route|link)\s`,
	`^ifconfig$`,
	`^ping\s+`,
	`^nslookup\s+`,
	`^dig\s+`,
	`^curl\s+-[^|]*$`,
	`^wget\s+-q[^|]*$`,
	`^python3?\s+-c\s+.*(print|import\s+sys)`,
	`^pip\s+(list|show|freeze)`,
	`^pip3\s+(list|show|freeze)`,
	`^uv\s+(run|pip\s+list)`,
	`^npm\s+(list|info|outdated)`,
	`^node\s+--version`,
	`^(python3?|pip3?|node|npm|git|docker)\s+--version`,
})

// confirmSignals: a match anywhere means the command mutates state and needs
// confirmation, even when it started with an allowlisted head.
var confirmSignals = compileAll([]string{
	`\bkill\b`,
	`\bpkill\b`,
	`\bkillall\b`,
	`\brm\b`,
	`\bmv\b`,
	`\bcp\b.*-[rf]`,
	`\bmkdir\b`,
	`\btouch\b`,
	`\bchmod\b`,
	`\bchown\b`,
	`\bsystemctl\s+(start|stop|restart|enable|disable|reload)`,
	`\bdocker\s+(start|stop|restart|rm|rmi|pull|run|exec)`,
	`\bdocker-compose\s+(up|down|restart|stop|start)`,
	`\bpip\s+install\b`,
	`\bpip3\s+install\b`,
	`\buv\s+add\b`,
	`\bnpm\s+install\b`,
	`\bapt(-get)?\s+(install|remove|purge|upgrade)\b`,
	`\byum\s+(install|remove)\b`,
	`\bsnap\s+(install|remove)\b`,
	`\bgit\s+(commit|push|pull|checkout|reset|merge|rebase|tag)\b`,
	`\bcrontab\b`,
	`\bscreen\b`,
	`\btmux\b`,
})

// ClassifyCommand classifies a shell command into a safety tier.
//
// Evaluation order is fixed:
//  1. Blocklist: any destructive pattern anywhere blocks the command.
//  2. Allowlist: a read-only head with no mutating signal auto-executes.
//  3. Mutating signal anywhere requires confirmation.
//  4. Default requires confirmation (fail closed toward human review).
func ClassifyCommand(cmd string) Tier {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return TierConfirm
	}

	for _, p := range blockedPatterns {
		if p.MatchString(cmd) {
			return TierBlocked
		}
	}

	for _, p := range autoPatterns {
		if p.MatchString(cmd) {
			if hasConfirmSignal(cmd) {
				break
			}
			return TierAuto
		}
	}

	if hasConfirmSignal(cmd) {
		return TierConfirm
	}

	return TierConfirm
}

func hasConfirmSignal(cmd string) bool {
	for _, p := range confirmSignals {
		if p.MatchString(cmd) {
			return true
		}
	}
	return false
}
