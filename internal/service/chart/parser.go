// Package chart extracts visualization directives embedded in model output.
package chart

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ecolab/eco/backend/internal/model/chat"
	"github.com/ecolab/eco/backend/internal/platform/logger"
)

// directivePattern matches the first fenced json block holding a single object.
var directivePattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// Result is the cleaned display text plus the chart, if one was decoded.
type Result struct {
	CleanText string
	Chart     *chat.ChartDescriptor
}

type envelope struct {
	Chart *struct {
		Type     string            `json:"type"`
		Title    string            `json:"title"`
		XAxisKey string            `json:"xAxisKey"`
		Data     []json.RawMessage `json:"data"`
	} `json:"chart"`
}

// Parser splits model output into display text and an optional chart.
type Parser struct {
	log *logger.Logger
}

// NewParser 创建解析器，log 为空时丢弃诊断日志
func NewParser(log *logger.Logger) *Parser {
	if log == nil {
		log = logger.Nop()
	}
	return &Parser{log: log.Named("chart")}
}

var defaultParser = NewParser(nil)

// Extract runs the default parser, which discards diagnostics.
func Extract(raw string) Result {
	return defaultParser.Extract(raw)
}

// Extract locates the first directive block in raw. On success the block is removed and
// the remainder trimmed. Any decode or validation failure leaves raw untouched and omits
// the chart.
func (p *Parser) Extract(raw string) Result {
	loc := directivePattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return Result{CleanText: raw}
	}

	descriptor, err := decode(raw[loc[2]:loc[3]])
	if err != nil {
		p.log.Debug("chart directive ignored", "error", err)
		return Result{CleanText: raw}
	}

	clean := strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
	return Result{CleanText: clean, Chart: descriptor}
}

func decode(body string) (*chat.ChartDescriptor, error) {
	var env envelope
	if err := sonic.UnmarshalString(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Chart == nil {
		return nil, fmt.Errorf("missing chart field")
	}

	c := env.Chart
	kind := chat.ChartKind(c.Type)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown chart type %q", c.Type)
	}
	if c.XAxisKey == "" {
		return nil, fmt.Errorf("empty xAxisKey")
	}
	if len(c.Data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	rows := make([]chat.Row, 0, len(c.Data))
	for i, rawRow := range c.Data {
		row := orderedmap.New[string, any]()
		if err := row.UnmarshalJSON(rawRow); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if _, ok := row.Get(c.XAxisKey); !ok {
			return nil, fmt.Errorf("row %d: missing %q", i, c.XAxisKey)
		}
		for pair := row.Oldest(); pair != nil; pair = pair.Next() {
			switch pair.Value.(type) {
			case float64, string:
			default:
				return nil, fmt.Errorf("row %d: field %q is %T", i, pair.Key, pair.Value)
			}
		}
		rows = append(rows, row)
	}

	return &chat.ChartDescriptor{
		Kind:        kind,
		Title:       c.Title,
		CategoryKey: c.XAxisKey,
		Rows:        rows,
	}, nil
}
