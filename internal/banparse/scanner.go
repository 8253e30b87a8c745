package banparse

import "strings"

// scanState is the state of the line scanner.
type scanState int

const (
	// stateIdle: not inside a reason block.
	stateIdle scanState = iota
	// stateCollectingReason: a "Reason:" line was seen; following lines
	// extend the reason until a terminator line.
	stateCollectingReason
)

// Line prefixes (lower case) that end a reason block. None of them are
// appended to the reason.
var reasonTerminators = []string{
	"ban id:",
	"find out more:",
	"sharing your ban id",
}

const (
	prefixReason = "reason:"
	prefixBanID  = "ban id:"
)

// lineScanner walks the lines of a ban message once.
//
// Transitions:
//
//	any state,        line starts "reason:"   -> CollectingReason (head = remainder)
//	CollectingReason, line starts terminator -> Idle
//	CollectingReason, any other line          -> CollectingReason (line appended)
//	Idle,             any other line          -> Idle
//
// Independently, every line starting with "ban id:" records the ban id.
type lineScanner struct {
	state scanState

	foundReason bool
	head        string
	tail        []string

	hasBanID bool
	banID    string
}

func newLineScanner() *lineScanner {
	return &lineScanner{state: stateIdle}
}

func (s *lineScanner) feed(line string) {
	switch {
	case hasPrefixFold(line, prefixReason):
		s.foundReason = true
		s.head = afterColon(line)
		s.state = stateCollectingReason
	case s.state == stateCollectingReason:
		if isReasonTerminator(line) {
			s.state = stateIdle
		} else {
			s.tail = append(s.tail, line)
		}
	}

	if hasPrefixFold(line, prefixBanID) {
		s.hasBanID = true
		s.banID = afterColon(line)
	}
}

// reason returns the collected reason: the text of the last "Reason:" line
// followed by every collected continuation line.
func (s *lineScanner) reason() string {
	if len(s.tail) == 0 {
		return s.head
	}
	return s.head + " " + strings.Join(s.tail, " ")
}

func isReasonTerminator(line string) bool {
	for _, prefix := range reasonTerminators {
		if hasPrefixFold(line, prefix) {
			return true
		}
	}
	return false
}
