package orders

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLooksLikeDisplayCode(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"379006", true},
		{"#379006", true},
		{"#1", true},
		{"1234", true},
		{"1234567890", true},
		{"123", false},
		{"12345678901", false},
		{"5f8d2c91e4b0aa12bc34", false},
		{"ORD-379006", false},
		{"#", false},
		{"", false},
		{"  379006  ", true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, LooksLikeDisplayCode(tc.code), "code %q", tc.code)
	}
}

func TestNormalizeDisplayCode(t *testing.T) {
	require.Equal(t, "379006", NormalizeDisplayCode("#379006"))
	require.Equal(t, "379006", NormalizeDisplayCode(" 379006 "))
	require.Equal(t, "", NormalizeDisplayCode(""))
}

func TestMergeRecordIncomingWins(t *testing.T) {
	amount := 42000.0
	existing := OrderRecord{
		OrderIdentity:    "d-1",
		ChannelOrderCode: "old-code",
		Channel:          "didi",
		CustomerName:     "Ana",
	}
	incoming := OrderRecord{
		OrderIdentity:    "d-1",
		ChannelOrderCode: "new-code",
		Channel:          "didi",
		Amount:           &amount,
		CustomerPhone:    "3001234567",
	}
	merged := mergeRecord(existing, incoming)
	require.Equal(t, "new-code", merged.ChannelOrderCode)
	require.Equal(t, &amount, merged.Amount)
	require.Equal(t, "3001234567", merged.CustomerPhone)
	// absent incoming fields never blank known values
	require.Equal(t, "Ana", merged.CustomerName)
}

func TestMergeRecordKeepsStableDisplayCode(t *testing.T) {
	existing := OrderRecord{ChannelOrderCode: "#379006", Channel: "didi"}
	incoming := OrderRecord{ChannelOrderCode: "5f8d2c91e4b0aa12bc34", Channel: "didi"}
	merged := mergeRecord(existing, incoming)
	require.Equal(t, "#379006", merged.ChannelOrderCode,
		"volatile id must not clobber a reconciled display code")

	// a newer display code still replaces an older one
	merged = mergeRecord(existing, OrderRecord{ChannelOrderCode: "379007"})
	require.Equal(t, "379007", merged.ChannelOrderCode)

	// and a display code replaces a volatile id
	merged = mergeRecord(OrderRecord{ChannelOrderCode: "5f8d2c91e4b0aa12bc34"}, OrderRecord{ChannelOrderCode: "#379006"})
	require.Equal(t, "#379006", merged.ChannelOrderCode)
}

func TestMergeRecordIdempotent(t *testing.T) {
	amount := 18500.0
	rec := OrderRecord{
		OrderIdentity:    "d-9",
		ChannelOrderCode: "379010",
		Channel:          "didi",
		Amount:           &amount,
	}
	once := mergeRecord(OrderRecord{OrderIdentity: "d-9"}, rec)
	twice := mergeRecord(once, rec)
	require.Equal(t, once, twice)
}

func TestMatchesRef(t *testing.T) {
	rec := OrderRecord{
		ChannelOrderCode: "#379006",
		ChannelOrderID:   "5f8d2c91e4b0aa12bc34",
		UniqueRef:        "POS-881",
	}
	require.True(t, rec.matchesRef("379006"))
	require.True(t, rec.matchesRef("#379006"))
	require.True(t, rec.matchesRef("5f8d2c91e4b0aa12bc34"))
	require.True(t, rec.matchesRef("POS-881"))
	require.False(t, rec.matchesRef("379007"))
	require.False(t, rec.matchesRef(""))
}

func TestExtractRenameMap(t *testing.T) {
	raw := `{
		"data": {
			"serving": [
				{"orderId": 5512345678901234, "displayNum": "#379006", "state": "serving"},
				{"orderId": 0, "displayNum": "#111"},
				{"orderId": 5512345678901235, "displayNum": ""}
			],
			"highlight": [
				{"orderId": "5512345678901236", "displayNum": "379007"}
			]
		}
	}`
	var payload RenamePayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	m := payload.ExtractRenameMap()
	require.Equal(t, map[string]string{
		"5512345678901234": "379006",
		"5512345678901236": "379007",
	}, m)
}
