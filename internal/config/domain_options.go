package config

import (
	"encoding/json"
	"os"

	"github.com/mxllabs/mxl/internal/pathutil"
)

// historyDurationOption is the only recognized domain option (spec
// §6.4): "urn:x-mxl:option:history_duration/v1.0", a duration in
// nanoseconds stored as a JSON number, setting the ring capacity.
const historyDurationOption = "urn:x-mxl:option:history_duration/v1.0"

// DefaultHistoryDurationNs is the Instance default when a domain
// carries no options.json or omits the history_duration key (spec
// §4.13: "historyDurationNs: default 200 ms").
const DefaultHistoryDurationNs int64 = 200_000_000

// DomainOptions is the parsed contents of a domain's options.json: an
// open-ended map of "urn:x-mxl:option:*" keys to values, of which only
// historyDurationOption is currently recognized.
type DomainOptions map[string]json.Number

// LoadDomainOptions reads <domain>/options.json. A missing file is not
// an error — it yields an empty DomainOptions, so every key falls back
// to its default.
func LoadDomainOptions(domain string) (DomainOptions, error) {
	raw, err := os.ReadFile(pathutil.DomainOptions(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return DomainOptions{}, nil
		}
		return nil, err
	}

	opts := DomainOptions{}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// HistoryDurationNs returns the configured ring-capacity duration, or
// DefaultHistoryDurationNs if the domain didn't set one or the stored
// value doesn't parse as a number.
func (o DomainOptions) HistoryDurationNs() int64 {
	v, ok := o[historyDurationOption]
	if !ok {
		return DefaultHistoryDurationNs
	}
	f, err := v.Float64()
	if err != nil {
		return DefaultHistoryDurationNs
	}
	return int64(f)
}
