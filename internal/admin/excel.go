package admin

import (
	"bytes"
	"context"
	"fmt"

	"medq/internal/answer"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ExportUserResponsesExcel renders UserResponses as a workbook with one row per answer.
func (s *Service) ExportUserResponsesExcel(ctx context.Context, userID int64) ([]byte, error) {
	groups, err := s.UserResponses(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "questionnaires": len(groups)}).Info("responses exported")
	return renderResponsesExcel(s.codec, groups)
}

func renderResponsesExcel(codec answer.Codec, groups []QuestionnaireResponses) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	headers := []string{"questionnaire", "question", "question_type", "response", "submitted_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, g := range groups {
		for _, it := range g.Responses {
			values := []any{
				g.QuestionnaireName,
				it.Question,
				string(it.QuestionType),
				answer.Format(codec, it.QuestionType, it.Response),
				g.SubmittedAt.Format("2006-01-02 15:04:05"),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			row++
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 18)
	_ = f.SetColWidth(sheet, "B", "B", 60)
	_ = f.SetColWidth(sheet, "C", "C", 14)
	_ = f.SetColWidth(sheet, "D", "D", 60)
	_ = f.SetColWidth(sheet, "E", "E", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
