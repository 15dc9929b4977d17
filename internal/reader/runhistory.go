package reader

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/space"
)

// Integer codes of the optimizer's status enum.
var statusCodes = map[int64]ledger.Status{
	1: ledger.StatusSuccess,
	2: ledger.StatusTimeout,
	3: ledger.StatusCrashed,
	4: ledger.StatusAbort,
	5: ledger.StatusMemout,
	6: ledger.StatusTimeout, // capped
}

// ReadRunHistory loads a runhistory.json into a new ledger over sp. Every
// entry is an observed run.
func ReadRunHistory(path string, sp *space.Space, opts ...ledger.Option) (*ledger.Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading runhistory: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("runhistory %s: invalid JSON", path)
	}
	doc := gjson.ParseBytes(data)

	configs := map[string]space.Configuration{}
	var parseErr error
	doc.Get("configs").ForEach(func(id, raw gjson.Result) bool {
		values := map[string]string{}
		raw.ForEach(func(name, v gjson.Result) bool {
			values[name.String()] = v.String()
			return true
		})
		cfg, err := sp.Configuration(values)
		if err != nil {
			parseErr = fmt.Errorf("runhistory %s: config %s: %w", path, id.String(), err)
			return false
		}
		configs[id.String()] = cfg
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	l := ledger.New(sp, opts...)
	for i, row := range doc.Get("data").Array() {
		key, val := row.Get("0"), row.Get("1")
		cfg, ok := configs[key.Get("0").String()]
		if !ok {
			return nil, fmt.Errorf("runhistory %s: entry %d: unknown config id %s", path, i, key.Get("0").String())
		}
		status, err := parseStatus(val.Get("2"))
		if err != nil {
			return nil, fmt.Errorf("runhistory %s: entry %d: %w", path, i, err)
		}
		v := ledger.RunValue{
			Cost:    val.Get("0").Float(),
			Runtime: val.Get("1").Float(),
			Status:  status,
			Origin:  ledger.Observed,
		}
		if err := l.Add(cfg, key.Get("1").String(), key.Get("2").Int(), v); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func parseStatus(r gjson.Result) (ledger.Status, error) {
	switch {
	case !r.Exists():
		return ledger.StatusSuccess, nil
	case r.Type == gjson.Number:
		if s, ok := statusCodes[r.Int()]; ok {
			return s, nil
		}
		return "", fmt.Errorf("unknown status code %d", r.Int())
	case r.IsObject():
		r = r.Get("__enum__")
	}
	name := strings.TrimPrefix(r.String(), "StatusType.")
	if name == "CAPPED" {
		return ledger.StatusTimeout, nil
	}
	return ledger.ParseStatus(name)
}
