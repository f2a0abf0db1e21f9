package model

import (
	"fmt"
	"log/slog"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// Codes of a ConfigErrorDetail.
const (
	CodeInvalidEnum     = "invalid_enum"
	CodeInvalidDuration = "invalid_duration"
	CodeInvalidSchedule = "invalid_schedule"
	CodeUnknownField    = "unknown_field"
	CodeMissing         = "missing_required"
	CodeInvalid         = "validation_error"
)

// ConfigErrorDetail is one readable problem found in a configuration file.
type ConfigErrorDetail struct {
	Path    string // modules.0.kind
	Code    string
	Message string
	Line    int
	Column  int
	Raw     string // message reported by cue
}

func (d ConfigErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", d.Code),
		slog.String("path", d.Path),
		slog.Int("line", d.Line),
		slog.Int("column", d.Column),
		slog.String("cue", d.Raw),
	)
}

// enums lists the allowed values of the enum fields of config.cue.
var enums = map[string][]string{
	"mode": {ServiceModeManual, ServiceModeTimer},
	"kind": {KindArena, KindTagArena, KindCampaign},
}

// CueErrDetails turns a LoadConfig error into one detail per offending
// field. A disjunction failing on several branches yields a single detail.
func CueErrDetails(err error) []ConfigErrorDetail {
	if err == nil {
		return nil
	}
	type key struct{ path, code string }
	seen := make(map[key]struct{})

	var out []ConfigErrorDetail
	for _, e := range cueerrors.Errors(err) {
		raw, args := e.Msg()
		raw = fmt.Sprintf(raw, args...)
		d := describe(fieldPath(e.Path()), raw)
		if _, ok := seen[key{d.Path, d.Code}]; ok {
			continue
		}
		seen[key{d.Path, d.Code}] = struct{}{}
		for _, p := range cueerrors.Positions(e) {
			if p.Filename() != "" {
				d.Line, d.Column = p.Line(), p.Column()
				break
			}
		}
		out = append(out, d)
	}
	return out
}

func describe(path, raw string) ConfigErrorDetail {
	d := ConfigErrorDetail{Path: path, Raw: raw}
	field := path[strings.LastIndexByte(path, '.')+1:]
	values, enum := enums[field]
	switch {
	case path == "service.schedule" || strings.HasPrefix(path, "service.schedule."):
		d.Path = "service.schedule"
		d.Code = CodeInvalidSchedule
		d.Message = "service.schedule needs exactly one of cron or duration"
	case enum && (path == "service.mode" || strings.HasPrefix(path, "modules.")):
		d.Code = CodeInvalidEnum
		d.Message = fmt.Sprintf("%s has invalid value: possible values (%s)", path, strings.Join(values, ","))
	case strings.Contains(raw, "out of bound =~"):
		d.Code = CodeInvalidDuration
		d.Message = fmt.Sprintf("%s is not a duration like 1d2h3m4s or 200ms", path)
	case strings.Contains(raw, "not allowed"):
		d.Code = CodeUnknownField
		d.Message = fmt.Sprintf("%s is not allowed", path)
	case strings.Contains(raw, "incomplete value"):
		d.Code = CodeMissing
		d.Message = fmt.Sprintf("%s is required", path)
	default:
		d.Code = CodeInvalid
		d.Message = fmt.Sprintf("%s: %s", path, raw)
	}
	return d
}

// fieldPath drops the leading #Config selector.
func fieldPath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}
