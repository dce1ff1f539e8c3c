package interaction

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FromQuery builds a question from URL query parameters. Values
// containing commas become lists. A questionID is generated when the
// query does not carry one.
func FromQuery(values url.Values) (QuestionCreated, error) {
	kind, err := ParseKind(values.Get("interaction"))
	if err != nil {
		return QuestionCreated{}, err
	}

	q := QuestionCreated{
		Header: Header{
			Interaction: kind,
			Question:    values.Get("question"),
			QuestionID:  values.Get("questionID"),
		},
		Extra: make(map[string]any),
	}
	if q.QuestionID == "" {
		q.QuestionID = uuid.NewString()
	}

	if raw := values.Get("timer"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			return QuestionCreated{}, fmt.Errorf("invalid timer %q", raw)
		}
		q.Timer = IntPtr(seconds)
	}

	for k := range values {
		if headerKeys[k] {
			continue
		}
		v := values.Get(k)
		if strings.Contains(v, ",") {
			q.Extra[k] = strings.Split(v, ",")
		} else {
			q.Extra[k] = v
		}
	}
	return q, nil
}
