package ai

import (
	"fmt"
	"strings"
)

// SummarySections are the H2 headings every summary is asked to follow, in order.
var SummarySections = []string{
	"ภาพรวมการประชุม",
	"หัวข้อที่หารือ",
	"การตัดสินใจ (Decisions)",
	"Action Items",
	"ประเด็นค้าง/คำถาม",
	"ความเสี่ยง & ทางแก้ (ถ้ามี)",
	"ขั้นตอนถัดไป (Next Steps)",
}

// sectionHints describes what goes under each heading.
var sectionHints = map[string][]string{
	"ภาพรวมการประชุม": {
		"วัตถุประสงค์หลัก 1–2 ข้อ",
		"สรุปผลลัพธ์/ความคืบหน้า 1–3 ข้อ",
	},
	"หัวข้อที่หารือ":              {"bullet 3–8 ข้อ"},
	"การตัดสินใจ (Decisions)":     {"1–5 ข้อ (ถ้ามี)"},
	"Action Items":                {"[Assignee] งาน — Due: YYYY-MM-DD", "[Assignee] งาน — Due: YYYY-MM-DD"},
	"ประเด็นค้าง/คำถาม":           {"1–5 ข้อ"},
	"ความเสี่ยง & ทางแก้ (ถ้ามี)": {"ความเสี่ยง + ทางบรรเทา"},
	"ขั้นตอนถัดไป (Next Steps)":   {"3–5 ข้อ"},
}

const summarySystemPrompt = `คุณคือผู้ช่วยสรุปการประชุมมืออาชีพ
สรุปภาษาไทย กระชับ ชัดเจน แบบ executive summary
**ตอบกลับเป็น Markdown เท่านั้น**
- ใช้หัวข้อ H2 (##) ตามลำดับ
- bullet สั้น กระชับ
- Action Items ระบุ [Assignee] งาน — Due: YYYY-MM-DD หรือ "-"`

// BuildSummaryPrompt builds the system and user messages for a meeting summary.
func BuildSummaryPrompt(transcript string) (string, string) {
	var b strings.Builder
	b.WriteString("โปรดสรุปด้วยหัวข้อ:\n")
	for _, section := range SummarySections {
		fmt.Fprintf(&b, "\n## %s\n", section)
		for _, hint := range sectionHints[section] {
			fmt.Fprintf(&b, "- %s\n", hint)
		}
	}
	b.WriteString("\nเนื้อหาที่ต้องสรุป:\n---------------------\n")
	b.WriteString(transcript)
	b.WriteString("\n---------------------")

	return summarySystemPrompt, b.String()
}
