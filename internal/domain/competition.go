package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ImageLocation is a URL of a discovered poster image.
type ImageLocation string

// Field is a key of the structured record, named by the label the model answers with.
type Field string

const (
	FieldTitle     Field = "제목"
	FieldAudience  Field = "응시 대상자"
	FieldPeriod    Field = "기간"
	FieldCategory  Field = "분야"
	FieldOrganizer Field = "주최사"
	FieldAward     Field = "시상내역"
)

// Fields lists record fields in table column order.
var Fields = []Field{
	FieldTitle,
	FieldAudience,
	FieldPeriod,
	FieldCategory,
	FieldOrganizer,
	FieldAward,
}

var columns = map[Field]string{
	FieldTitle:     "title",
	FieldAudience:  "target",
	FieldPeriod:    "period",
	FieldCategory:  "category",
	FieldOrganizer: "org",
	FieldAward:     "award",
}

var labels = map[Field][]string{
	FieldAudience: {"제한없음", "일반인", "대학생", "청소년", "어린이", "기타"},
	FieldPeriod:   {"전체", "일주일 이내", "한 달 이내", "3개월 이내", "6개월 이내", "6개월 이상"},
	FieldCategory: {
		"기획/아이디어", "광고/마케팅", "논문/리포트", "영상/UCC/사진", "디자인/캐릭터/웹툰",
		"웹/모바일/IT", "게임/소프트웨어", "과학/공학", "문학/글/시나리오", "건축/건설/인테리어",
		"네이밍/슬로건", "예체능/미술/음악", "대외활동/서포터즈", "봉사활동", "취업/창업", "해외", "기타",
	},
	FieldOrganizer: {
		"정부/공공기관", "공기업", "대기업", "신문/방송/언론", "외국계기업",
		"중견/중소/벤처기업", "비영리/협회/재단", "해외", "기타",
	},
	FieldAward: {
		"100만원 이내", "100~500만원", "500~1000만원", "1000만원 이상",
		"취업특전", "입사시가산점", "인턴채용", "정직원채용",
	},
}

// Column returns the table column that stores the field.
func (f Field) Column() string {
	return columns[f]
}

// Labels returns the allowed labels; nil means free text.
func (f Field) Labels() []string {
	return labels[f]
}

// Record is the structured output extracted from one poster.
type Record map[Field]string

// Empty reports whether no recognised field is set.
func (r Record) Empty() bool {
	return len(r) == 0
}

// RecordFromJSON keeps recognised keys of a decoded JSON object.
// Nulls are dropped and other scalars are rendered as text.
func RecordFromJSON(obj map[string]any) Record {
	rec := Record{}
	for _, f := range Fields {
		v, ok := obj[string(f)]
		if !ok || v == nil {
			continue
		}
		rec[f] = textValue(v)
	}
	return rec
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Row is a record ready to be inserted; SourceURL nil is stored as NULL.
type Row struct {
	Record    Record
	SourceURL *string
}
