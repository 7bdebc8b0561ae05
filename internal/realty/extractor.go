package realty

import (
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"

	"github.com/nexconsult/egrn-tools/internal/models"
	"github.com/sirupsen/logrus"
)

// Placeholders written when the extract lacks a value
const (
	BasementFloor     = "Цокольный"
	NoNumber          = "нет"
	NoRegNumber       = "Данные отсутствуют"
	NoEncumbranceInfo = "Сведения отсутствуют"
	NoEncumbrance     = "не зарегистрировано"
	basementLevelCode = "0"
	defaultNumerator  = "1"
)

// realtyTypes maps assignation codes to premises type names
var realtyTypes = map[string]string{
	"206001000000": "Нежилое помещение",
	"206002000000": "Помещение (Квартира)",
}

// Extractor maps parsed extracts to records
type Extractor struct {
	logger *logrus.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(logger *logrus.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// ExtractFile parses the XML document at path and maps it to a record.
// A document that cannot be mapped is logged together with its tree.
func (e *Extractor) ExtractFile(path string) (models.RealtyRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.RealtyRecord{}, fmt.Errorf("failed to open xml document: %w", err)
	}
	defer f.Close()

	tree, err := Parse(f)
	if err != nil {
		return models.RealtyRecord{}, &ExtractionError{Source: path, Err: err}
	}

	record, err := Extract(tree)
	if err != nil {
		var extractionErr *ExtractionError
		if errors.As(err, &extractionErr) {
			extractionErr.Source = path
		}
		e.logger.WithFields(logrus.Fields{
			"file":  path,
			"error": err.Error(),
			"tree":  tree.JSON(),
		}).Error("Failed to extract record")
		return models.RealtyRecord{}, err
	}

	return record, nil
}

// Extract maps one parsed extract to a record. Unexpected document shapes
// are reported as an ExtractionError, never as a panic.
func Extract(tree Tree) (record models.RealtyRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			record = models.RealtyRecord{}
			err = &ExtractionError{Err: fmt.Errorf("unexpected document shape: %v", r)}
		}
	}()

	doc, err := Normalize(tree)
	if err != nil {
		return models.RealtyRecord{}, err
	}

	flat := doc.Flat
	record = models.RealtyRecord{
		Floor:           floor(flat),
		Number:          flat.Get("PositionInObject.Levels.Level.Position.-NumberOnPlan", NoNumber).String(),
		CadastralNumber: flat.Get("-CadastralNumber", "").String(),
		Type:            realtyType(flat.Get("Assignation.AssignationCode", "").String()),
		Area:            flat.Get("Area", "").String(),
		OwnerNames:      ownerNames(doc.Rights),
		RightName:       perRight(doc.Rights, "Registration.Name", ""),
		PartSize:        partSize(doc),
		RegNumber:       perRight(doc.Rights, "Registration.RegNumber", NoRegNumber),
		RegDate:         perRight(doc.Rights, "Registration.RegDate", ""),
		Encumbrance:     encumbrance(doc.Rights),
		CadastralCost:   flat.Get("CadastralCost.-Value", "").String(),
		RequeryNumber:   doc.RequeryNumber.String(),
	}
	return record, nil
}

func floor(flat Value) string {
	levels := flat.Get("PositionInObject.Levels.Level", "").Seq()

	switch len(levels) {
	case 0:
		return ""
	case 1:
		number := levels[0].Get("-Number", "").String()
		if number == basementLevelCode {
			return BasementFloor
		}
		return number
	}

	numbers := make([]string, len(levels))
	for i, level := range levels {
		numbers[i] = level.Get("-Number", "").String()
	}
	return strings.Join(numbers, ",")
}

func realtyType(code string) string {
	if name, ok := realtyTypes[code]; ok {
		return name
	}
	return code
}

func ownerName(owner Value) string {
	if fio := owner.Get("Person.FIO", ""); fio.Found {
		var parts []string
		for _, key := range []string{"Surname", "First", "Patronymic"} {
			if part := strings.TrimSpace(fio.Get(key, "").String()); part != "" {
				parts = append(parts, part)
			}
		}
		return html.UnescapeString(strings.Join(parts, " "))
	}

	for _, path := range []string{"Organization.Name", "Governance.Name"} {
		if name := owner.Get(path, ""); name.Found {
			return html.UnescapeString(strings.TrimSpace(name.String()))
		}
	}
	return html.UnescapeString(strings.TrimSpace(owner.String()))
}

func ownerNames(rights []Right) string {
	var names []string
	for _, right := range rights {
		for _, owner := range right.Owners {
			names = append(names, ownerName(owner))
		}
	}
	return strings.Join(names, "\n")
}

func perRight(rights []Right, path, def string) string {
	if len(rights) == 0 {
		return def
	}

	values := make([]string, len(rights))
	for i, right := range rights {
		values[i] = right.Get(path, def).String()
	}
	return strings.Join(values, "\n")
}

func partSize(doc *Document) string {
	if len(doc.Rights) == 0 {
		return ""
	}

	if doc.RightsIsSequence {
		count := strconv.Itoa(len(doc.Rights))
		shares := make([]string, len(doc.Rights))
		for i, right := range doc.Rights {
			share := right.Get("Registration.Share", "")
			shares[i] = share.Get("-Numerator", defaultNumerator).String() + "/" + share.Get("-Denominator", count).String()
		}
		return strings.Join(shares, "\n")
	}

	right := doc.Rights[0]
	if !right.OwnersIsSequence {
		return "1"
	}

	share := "1/" + strconv.Itoa(len(right.Owners))
	shares := make([]string, len(right.Owners))
	for i := range shares {
		shares[i] = share
	}
	return strings.Join(shares, "\n")
}

func encumbrance(rights []Right) string {
	if len(rights) == 0 {
		return NoEncumbranceInfo
	}

	values := make([]string, len(rights))
	for i, right := range rights {
		switch {
		case right.Get("Encumbrance.Name", "").Found:
			values[i] = right.Get("Encumbrance.Name", "").String()
		case right.Get("NoEncumbrance", "").Found:
			values[i] = right.Get("NoEncumbrance", "").String()
			if values[i] == "" {
				values[i] = NoEncumbrance
			}
		default:
			values[i] = NoEncumbranceInfo
		}
	}
	return strings.Join(values, "\n")
}
