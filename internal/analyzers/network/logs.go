package network

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

// scanBufferSize accommodates long single-line log records.
const scanBufferSize = 1 << 20

var (
	// Common Log Format: client, user fields, timestamp, request, status.
	accessPattern = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "(\S+) (\S+)[^"]*" (\d{3})`)

	failedLoginPattern   = regexp.MustCompile(`Failed password for (?:invalid user )?(\S+) from (\S+)`)
	acceptedLoginPattern = regexp.MustCompile(`Accepted \S+ for (\S+) from (\S+)`)
	invalidUserPattern   = regexp.MustCompile(`Invalid user (\S+) from (\S+)`)

	srcPattern   = regexp.MustCompile(`SRC=(\S+)`)
	dstPattern   = regexp.MustCompile(`DST=(\S+)`)
	protoPattern = regexp.MustCompile(`PROTO=(\S+)`)
	dportPattern = regexp.MustCompile(`DPT=(\S+)`)

	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

var genericKeywords = []string{"error", "warning", "failed", "denied", "critical"}

// scanLines feeds each line to fn until the cap or EOF, returning how many
// lines were read and whether the cap cut the file short.
func scanLines(res *analyze.Result, path string, limit int, fn func(line string)) (int, bool) {
	f, openErr := os.Open(path)
	if openErr != nil {
		res.SetError(fmt.Sprintf("open log: %v", openErr))

		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	lines := 0
	for scanner.Scan() {
		if lines >= limit {
			return lines, true
		}

		lines++
		fn(scanner.Text())
	}

	if scanErr := scanner.Err(); scanErr != nil {
		res.SetError(fmt.Sprintf("scan log: %v", scanErr))

		return lines, false
	}

	return lines, false
}

func analyzeAccessLog(res *analyze.Result, path string) {
	var (
		matched  int
		clients  = tally{}
		methods  = tally{}
		statuses = tally{}
		urls     = tally{}
	)

	lines, capped := scanLines(res, path, maxAccessLines, func(line string) {
		m := accessPattern.FindStringSubmatch(line)
		if m == nil {
			return
		}

		matched++
		clients.add(m[1])
		methods.add(m[3])
		urls.add(m[4])
		statuses.add(m[5])
	})
	if !res.Success {
		return
	}

	res.FileType = "Web Access Log"
	res.Metadata["log_format"] = "web_access"
	res.Metadata["line_count"] = lines
	res.Metadata["lines_matched"] = matched
	res.Metadata["line_cap_reached"] = capped
	res.Metadata["status_counts"] = statuses.counts()
	res.Metadata["method_counts"] = methods.counts()
	res.Metadata["top_clients"] = clients.top(10)
	res.Metadata["top_urls"] = urls.top(10)
}

func analyzeFirewallLog(res *analyze.Result, path string) {
	var (
		matched int
		sources = tally{}
		dests   = tally{}
		protos  = tally{}
		ports   = tally{}
	)

	lines, capped := scanLines(res, path, maxFirewallLines, func(line string) {
		src := srcPattern.FindStringSubmatch(line)
		if src == nil {
			return
		}

		matched++
		sources.add(src[1])

		if dst := dstPattern.FindStringSubmatch(line); dst != nil {
			dests.add(dst[1])
		}

		if proto := protoPattern.FindStringSubmatch(line); proto != nil {
			protos.add(proto[1])
		}

		if port := dportPattern.FindStringSubmatch(line); port != nil {
			ports.add(port[1])
		}
	})
	if !res.Success {
		return
	}

	res.FileType = "Firewall Log"
	res.Metadata["log_format"] = "firewall"
	res.Metadata["line_count"] = lines
	res.Metadata["lines_matched"] = matched
	res.Metadata["line_cap_reached"] = capped
	res.Metadata["top_sources"] = sources.top(10)
	res.Metadata["top_destinations"] = dests.top(10)
	res.Metadata["protocol_counts"] = protos.counts()
	res.Metadata["top_dest_ports"] = ports.top(10)
}

func analyzeAuthLog(res *analyze.Result, path string) {
	var (
		failed    int
		accepted  int
		invalid   int
		attackers = tally{}
		users     = tally{}
	)

	lines, capped := scanLines(res, path, maxAuthLines, func(line string) {
		if m := failedLoginPattern.FindStringSubmatch(line); m != nil {
			failed++
			users.add(m[1])
			attackers.add(m[2])

			return
		}

		if m := invalidUserPattern.FindStringSubmatch(line); m != nil {
			invalid++
			users.add(m[1])
			attackers.add(m[2])

			return
		}

		if m := acceptedLoginPattern.FindStringSubmatch(line); m != nil {
			accepted++
			users.add(m[1])
		}
	})
	if !res.Success {
		return
	}

	res.FileType = "Auth Log"
	res.Metadata["log_format"] = "auth"
	res.Metadata["line_count"] = lines
	res.Metadata["line_cap_reached"] = capped
	res.Metadata["failed_logins"] = failed
	res.Metadata["accepted_logins"] = accepted
	res.Metadata["invalid_users"] = invalid
	res.Metadata["top_attacking_ips"] = attackers.top(10)
	res.Metadata["top_usernames"] = users.top(10)
}

func analyzeGenericLog(res *analyze.Result, path string) {
	var (
		ips      = tally{}
		keywords = tally{}
	)

	lines, capped := scanLines(res, path, maxGenericLines, func(line string) {
		for _, ip := range ipv4Pattern.FindAllString(line, -1) {
			ips.add(ip)
		}

		lower := strings.ToLower(line)
		for _, kw := range genericKeywords {
			if strings.Contains(lower, kw) {
				keywords.add(kw)
			}
		}
	})
	if !res.Success {
		return
	}

	res.FileType = "Log File"
	res.Metadata["log_format"] = "generic"
	res.Metadata["line_count"] = lines
	res.Metadata["line_cap_reached"] = capped
	res.Metadata["unique_ips"] = len(ips)
	res.Metadata["top_ips"] = ips.top(10)
	res.Metadata["keyword_counts"] = keywords.counts()
}
