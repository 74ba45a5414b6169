package ingest

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

const testProgramID = "ZmartMarket111111111111111111111111111111111"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventLine(t *testing.T, name string, payload any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return "Program log: " + name + " " + base64.StdEncoding.EncodeToString(raw)
}

func wrapLogs(lines ...string) []string {
	out := []string{"Program " + testProgramID + " invoke [1]"}
	out = append(out, lines...)
	out = append(out, "Program "+testProgramID+" success")
	return out
}

func TestParseSingleEvent(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	tx := domain.TransactionDescriptor{
		Signature: "sig1",
		Logs: wrapLogs(
			eventLine(t, "MarketCreated", domain.MarketCreated{
				Market:   "addr1",
				Creator:  "creator1",
				Question: "Will it rain?",
			}),
		),
	}

	events := p.Parse(tx)
	require.Len(t, events, 1)
	created, ok := events[0].(domain.MarketCreated)
	require.True(t, ok)
	assert.Equal(t, "addr1", created.Market)
	assert.Equal(t, "Will it rain?", created.Question)
}

func TestParsePreservesOrder(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	tx := domain.TransactionDescriptor{
		Signature: "sig2",
		Logs: wrapLogs(
			eventLine(t, "SharesBought", domain.SharesBought{Market: "addr1", Shares: 5}),
			eventLine(t, "SharesSold", domain.SharesSold{Market: "addr1", Shares: 2}),
		),
	}

	events := p.Parse(tx)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventSharesBought, events[0].Type())
	assert.Equal(t, domain.EventSharesSold, events[1].Type())
}

func TestParseDropsUnknownEvent(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	tx := domain.TransactionDescriptor{
		Logs: wrapLogs(
			eventLine(t, "SomethingNew", map[string]string{"a": "b"}),
			eventLine(t, "MarketActivated", domain.MarketActivated{Market: "addr1"}),
		),
	}

	events := p.Parse(tx)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMarketActivated, events[0].Type())
}

func TestParseSkipsMalformedPayload(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	garbageB64 := base64.StdEncoding.EncodeToString([]byte("not json"))
	tx := domain.TransactionDescriptor{
		Logs: wrapLogs(
			"Program log: MarketCreated %%%not-base64%%%",
			"Program log: MarketCreated "+garbageB64,
			"Program log: bare line without payload field",
			"some unrelated runtime output",
		),
	}

	assert.Empty(t, p.Parse(tx))
}

func TestParseIgnoresOtherPrograms(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	tx := domain.TransactionDescriptor{
		Logs: []string{
			"Program OtherProgram11111111111111111111111111111111 invoke [1]",
			eventLine(t, "MarketActivated", domain.MarketActivated{Market: "foreign"}),
			"Program OtherProgram11111111111111111111111111111111 success",
		},
	}

	assert.Empty(t, p.Parse(tx))
}

func TestParseSkipsNestedInvocationLogs(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	tx := domain.TransactionDescriptor{
		Logs: []string{
			"Program " + testProgramID + " invoke [1]",
			"Program Token111111111111111111111111111111111111111 invoke [2]",
			eventLine(t, "MarketActivated", domain.MarketActivated{Market: "nested"}),
			"Program Token111111111111111111111111111111111111111 success",
			eventLine(t, "MarketActivated", domain.MarketActivated{Market: "ours"}),
			"Program " + testProgramID + " success",
		},
	}

	events := p.Parse(tx)
	require.Len(t, events, 1)
	assert.Equal(t, "ours", events[0].(domain.MarketActivated).Market)
}

func TestParseDropsFailedFrame(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	tx := domain.TransactionDescriptor{
		Logs: []string{
			"Program " + testProgramID + " invoke [1]",
			eventLine(t, "MarketActivated", domain.MarketActivated{Market: "doomed"}),
			"Program " + testProgramID + " failed: custom program error: 0x1",
		},
	}

	assert.Empty(t, p.Parse(tx))
}

func TestParseEmptyLogs(t *testing.T) {
	p := NewParser(testProgramID, testLogger())
	assert.Empty(t, p.Parse(domain.TransactionDescriptor{}))
}
