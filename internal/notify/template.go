package notify

import (
	"strings"
	"time"
)

// fields is a sentinel name -> value map substituted into a notification
// template by plain string replace, per the documented sentinel list
// ({ProfileName}, {ExecutionId}, {StartedAt.*}, ...). Templates are HTML.
type fields map[string]string

// render substitutes every {Sentinel} present in f into tmpl. Unknown
// sentinels are left untouched rather than erroring — the template author's
// responsibility, not the renderer's.
func render(tmpl string, f fields) string {
	pairs := make([]string, 0, len(f)*2)
	for k, v := range f {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// timeFields expands a timestamp into the ".*" sentinel family the templates
// reference, e.g. {StartedAt.Date}, {StartedAt.Time}.
func timeFields(prefix string, t time.Time) fields {
	t = t.UTC()
	return fields{
		prefix:              t.Format(time.RFC3339),
		prefix + ".Date":    t.Format("2006-01-02"),
		prefix + ".Time":    t.Format("15:04:05"),
		prefix + ".Unix":    t.Format(time.UnixDate),
	}
}

func merge(all ...fields) fields {
	out := fields{}
	for _, f := range all {
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}
