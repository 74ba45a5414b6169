package ingest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// eventLogPrefix marks a program log line carrying an emitted event. The
// line format is "Program log: <EventName> <base64 payload>".
const eventLogPrefix = "Program log: "

// decoder turns one raw event payload into its typed form. Each event kind
// gets its own decoder so the payload codec can change per kind without
// touching the parser.
type decoder func(payload []byte) (domain.ChainEvent, error)

func decodeJSON[T domain.ChainEvent](payload []byte) (domain.ChainEvent, error) {
	var evt T
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// registry maps wire event names to their decoders. Adding an event kind
// means adding a row here and a case in the router switch.
var registry = map[domain.EventType]decoder{
	domain.EventMarketCreated:    decodeJSON[domain.MarketCreated],
	domain.EventMarketActivated:  decodeJSON[domain.MarketActivated],
	domain.EventMarketResolved:   decodeJSON[domain.MarketResolved],
	domain.EventDisputeInitiated: decodeJSON[domain.DisputeInitiated],
	domain.EventMarketFinalized:  decodeJSON[domain.MarketFinalized],
	domain.EventMarketCancelled:  decodeJSON[domain.MarketCancelled],

	domain.EventSharesBought:       decodeJSON[domain.SharesBought],
	domain.EventSharesSold:         decodeJSON[domain.SharesSold],
	domain.EventWinningsClaimed:    decodeJSON[domain.WinningsClaimed],
	domain.EventLiquidityWithdrawn: decodeJSON[domain.LiquidityWithdrawn],

	domain.EventProposalVoteSubmitted: decodeJSON[domain.ProposalVoteSubmitted],
	domain.EventDisputeVoteSubmitted:  decodeJSON[domain.DisputeVoteSubmitted],
	domain.EventProposalAggregated:    decodeJSON[domain.ProposalAggregated],
	domain.EventDisputeAggregated:     decodeJSON[domain.DisputeAggregated],

	domain.EventEmergencyPauseToggled: decodeJSON[domain.EmergencyPauseToggled],
	domain.EventConfigUpdated:         decodeJSON[domain.ConfigUpdated],
}

// Parser extracts typed events from transaction log output. It only looks
// at log lines emitted while the configured program is on the invocation
// stack; everything else in the transaction is ignored.
type Parser struct {
	programID string
	logger    *slog.Logger
}

// NewParser creates a parser scoped to one program ID.
func NewParser(programID string, logger *slog.Logger) *Parser {
	return &Parser{
		programID: programID,
		logger:    logger.With(slog.String("component", "parser")),
	}
}

// Parse extracts the events a transaction emitted, in log order. Unknown
// event names are dropped with a debug log; malformed payloads are skipped.
// Parse never fails: a garbage transaction yields an empty slice.
func (p *Parser) Parse(tx domain.TransactionDescriptor) []domain.ChainEvent {
	var events []domain.ChainEvent
	for _, line := range p.programLogs(tx.Logs) {
		name, payload, ok := splitEventLine(line)
		if !ok {
			continue
		}
		decode, known := registry[domain.EventType(name)]
		if !known {
			p.logger.Debug("dropping unknown event",
				slog.String("event", name),
				slog.String("tx", tx.Signature),
			)
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			p.logger.Warn("skipping event with undecodable payload",
				slog.String("event", name),
				slog.String("tx", tx.Signature),
				slog.String("error", err.Error()),
			)
			continue
		}
		evt, err := decode(raw)
		if err != nil {
			p.logger.Warn("skipping malformed event payload",
				slog.String("event", name),
				slog.String("tx", tx.Signature),
				slog.String("error", err.Error()),
			)
			continue
		}
		events = append(events, evt)
	}
	return events
}

// programLogs returns the log lines emitted between the program's invoke
// and success/failed markers. Nested invocations of other programs inside
// our frame are skipped by depth tracking.
func (p *Parser) programLogs(logs []string) []string {
	invokeMarker := fmt.Sprintf("Program %s invoke", p.programID)
	successMarker := fmt.Sprintf("Program %s success", p.programID)
	failedMarker := fmt.Sprintf("Program %s failed", p.programID)

	var out []string
	var frame []string
	depth := 0
	inFrame := false
	for _, line := range logs {
		switch {
		case strings.HasPrefix(line, invokeMarker):
			inFrame = true
			depth = 0
			frame = frame[:0]
		case inFrame && strings.HasPrefix(line, successMarker):
			out = append(out, frame...)
			inFrame = false
		case inFrame && strings.HasPrefix(line, failedMarker):
			// A failed frame still flushes its logs, but nothing it
			// emitted took effect.
			inFrame = false
		case inFrame && strings.HasPrefix(line, "Program ") && strings.Contains(line, " invoke ["):
			depth++
		case inFrame && strings.HasPrefix(line, "Program ") && (strings.HasSuffix(line, " success") || strings.Contains(line, " failed: ")):
			if depth > 0 {
				depth--
			}
		case inFrame && depth == 0:
			frame = append(frame, line)
		}
	}
	return out
}

// splitEventLine splits "Program log: <Name> <payload>" into its parts. A
// line without the prefix or without both fields is not an event line.
func splitEventLine(line string) (name, payload string, ok bool) {
	body, found := strings.CutPrefix(line, eventLogPrefix)
	if !found {
		return "", "", false
	}
	name, payload, found = strings.Cut(body, " ")
	if !found || name == "" || payload == "" {
		return "", "", false
	}
	return name, payload, true
}
