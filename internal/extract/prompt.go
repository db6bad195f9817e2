package extract

import (
	"strings"

	"CompetitionScanner/internal/domain"
)

const (
	promptIntro = "첨부하는 이미지는 대한민국에서 개최되는 공모전 또는 대회의 홍보 포스터야. " +
		"해당 이미지에서 응시 대상자, 기간, 분야, 주최사, 시상내역의 내용을 추출하여 다음 json 형식으로 반환해."
	promptRule   = "이 때, 각 항목 중 가장 가까운 분류를 선택하도록 하고, 전혀 해당내용이 없을 경우에만 기타를 반환해."
	titleHint    = "포스터 내 제목을 그대로 사용"
	choiceSuffix = " 중 택 1"
)

// BuildPrompt embeds the field taxonomy and allowed labels, followed by the OCR text.
func BuildPrompt(text string) string {
	var b strings.Builder
	b.WriteString(promptIntro)
	b.WriteString(taxonomy())
	b.WriteString(promptRule)
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

func taxonomy() string {
	parts := make([]string, 0, len(domain.Fields))
	for _, f := range domain.Fields {
		hint := titleHint
		if labels := f.Labels(); len(labels) > 0 {
			hint = strings.Join(labels, ", ") + choiceSuffix
		}
		parts = append(parts, "'"+string(f)+"': '"+hint+"'")
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
