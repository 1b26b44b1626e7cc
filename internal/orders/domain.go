package orders

import (
	"encoding/json"
	"strings"
)

// OrderRecord is one sighting-merged order within a (site, day) partition.
// Fields are channel-supplied and best-effort; merges only ever add or
// overwrite known values, never blank out a previously known one.
type OrderRecord struct {
	// OrderIdentity is the merge key, unique within the partition. Records
	// arriving without one get a synthetic identity and are kept distinct,
	// which can duplicate an order but never drops it.
	OrderIdentity string `json:"order_identity"`
	Synthetic     bool   `json:"synthetic,omitempty"`

	// ChannelOrderCode is the customer-facing reference. It may start out as
	// the channel's long volatile id and is later rewritten to the stable
	// short display code once the rename map reports it.
	ChannelOrderCode string `json:"channel_order_code"`
	// ChannelOrderID keeps the channel's own long order id when known.
	ChannelOrderID string `json:"channel_order_id,omitempty"`
	// UniqueRef is the POS-side unique identifier, used as a fallback when
	// looking an order up by reference.
	UniqueRef string `json:"unique_ref,omitempty"`

	Channel       string  `json:"channel"`
	PlacedDate    string  `json:"placed_date,omitempty"`
	PlacedTime    string  `json:"placed_time,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
	CustomerName  string  `json:"customer_name,omitempty"`
	CustomerPhone string  `json:"customer_phone,omitempty"`
}

// Partition is the per-(site, day) collection the store merges into.
type Partition struct {
	Site    string                 `json:"site"`
	Day     string                 `json:"day"`
	Records map[string]OrderRecord `json:"records"`
}

// BatchResult reports how a merge landed, for observability.
type BatchResult struct {
	Merged  int           `json:"merged"`
	Skipped int           `json:"skipped"`
	Errors  []RecordError `json:"errors,omitempty"`
}

// RecordError describes one skipped incoming record.
type RecordError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// NormalizeDisplayCode strips the optional "#" prefix so codes compare and
// key storage the same way (e.g. "#379006" -> "379006").
func NormalizeDisplayCode(code string) string {
	return strings.TrimPrefix(strings.TrimSpace(code), "#")
}

// LooksLikeDisplayCode reports whether code is a stable short display code:
// a digit string of 4-10 characters, optionally "#"-prefixed. A code that
// passes must not be overwritten by the channel's long volatile id. The
// length heuristic is inherited behaviour and can misclassify long numeric
// ids from other channels; callers rely on it as documented.
func LooksLikeDisplayCode(code string) bool {
	s := strings.TrimSpace(code)
	if s == "" || len(s) > 15 {
		return false
	}
	if strings.HasPrefix(s, "#") {
		s = s[1:]
		return s != "" && isDigits(s)
	}
	return isDigits(s) && len(s) >= 4 && len(s) <= 10
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// mergeRecord folds incoming into existing: incoming wins only where it has
// a non-empty value. The one exception is ChannelOrderCode, where an already
// reconciled display code survives a later poll that only carries the raw
// volatile id.
func mergeRecord(existing, incoming OrderRecord) OrderRecord {
	out := existing
	if incoming.ChannelOrderCode != "" {
		if !(LooksLikeDisplayCode(existing.ChannelOrderCode) && !LooksLikeDisplayCode(incoming.ChannelOrderCode)) {
			out.ChannelOrderCode = incoming.ChannelOrderCode
		}
	}
	if incoming.ChannelOrderID != "" {
		out.ChannelOrderID = incoming.ChannelOrderID
	}
	if incoming.UniqueRef != "" {
		out.UniqueRef = incoming.UniqueRef
	}
	if incoming.Channel != "" {
		out.Channel = incoming.Channel
	}
	if incoming.PlacedDate != "" {
		out.PlacedDate = incoming.PlacedDate
	}
	if incoming.PlacedTime != "" {
		out.PlacedTime = incoming.PlacedTime
	}
	if incoming.Amount != nil {
		out.Amount = incoming.Amount
	}
	if incoming.CustomerName != "" {
		out.CustomerName = incoming.CustomerName
	}
	if incoming.CustomerPhone != "" {
		out.CustomerPhone = incoming.CustomerPhone
	}
	return out
}

// matchesRef reports whether the record answers to the given reference in
// any of its identifier fields, "#" prefix ignored.
func (r OrderRecord) matchesRef(ref string) bool {
	ref = NormalizeDisplayCode(ref)
	if ref == "" {
		return false
	}
	return NormalizeDisplayCode(r.ChannelOrderCode) == ref ||
		r.ChannelOrderID == ref ||
		r.UniqueRef == ref
}

// assetAliases returns the key evidence folders should live under and the
// record's alternate references that may still hold some. Records whose code
// is not yet the stable display code get no canonical key; their evidence
// stays where it is until the rename lands.
func (r OrderRecord) assetAliases() (canonical string, aliases []string) {
	if !LooksLikeDisplayCode(r.ChannelOrderCode) {
		return "", nil
	}
	canonical = NormalizeDisplayCode(r.ChannelOrderCode)
	seen := map[string]struct{}{canonical: {}}
	for _, alt := range []string{r.ChannelOrderID, r.UniqueRef} {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		if _, ok := seen[alt]; ok {
			continue
		}
		seen[alt] = struct{}{}
		aliases = append(aliases, alt)
	}
	return canonical, aliases
}

// RenamePayload is the raw daily-orders document posted by the channel
// capture extension. Only the order id and display number are consumed.
type RenamePayload struct {
	Data struct {
		Serving   []renameEntry `json:"serving"`
		Highlight []renameEntry `json:"highlight"`
	} `json:"data"`
}

type renameEntry struct {
	OrderID    json.Number `json:"orderId"`
	DisplayNum string      `json:"displayNum"`
}

// ExtractRenameMap pulls volatileId -> stableCode pairs out of the channel
// payload, dropping entries missing either side.
func (p RenamePayload) ExtractRenameMap() map[string]string {
	out := make(map[string]string)
	for _, e := range append(p.Data.Serving, p.Data.Highlight...) {
		oid := strings.TrimSpace(e.OrderID.String())
		display := NormalizeDisplayCode(e.DisplayNum)
		if oid != "" && oid != "0" && display != "" {
			out[oid] = display
		}
	}
	return out
}
