package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"CompetitionScanner/internal/domain"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// ParseReply pulls a record out of a free-text model reply.
// The first ```json fenced object wins; otherwise the whole reply is tried.
func ParseReply(reply string) (domain.Record, error) {
	obj, err := decodeReply(strings.TrimSpace(reply))
	if err != nil {
		return domain.Record{}, domain.Fail(domain.StageInference, domain.ReasonNoStructuredReply, err)
	}

	rec := domain.RecordFromJSON(obj)
	if rec.Empty() {
		return domain.Record{}, domain.Fail(domain.StageInference, domain.ReasonEmptyRecord,
			fmt.Errorf("reply has no recognised fields"))
	}
	return rec, nil
}

func decodeReply(reply string) (map[string]any, error) {
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		if obj, err := decodeObject(m[1]); err == nil {
			return obj, nil
		}
	}

	obj, err := decodeObject(reply)
	if err != nil {
		return nil, fmt.Errorf("reply is neither fenced nor plain json: %w", err)
	}
	return obj, nil
}

func decodeObject(raw string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("json value is not an object")
	}
	return obj, nil
}
