package realty

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nexconsult/egrn-tools/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractDoc(flat, rights string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<KPOKS>
  <Realty>` + flat + `</Realty>
  <ReestrExtract>
    <DeclarAttribute RequeryNumber="99/2019/123456"/>
    <ExtractObjectRight>
      <ExtractObject>
        <ObjectRight>` + rights + `</ObjectRight>
      </ExtractObject>
    </ExtractObjectRight>
  </ReestrExtract>
</KPOKS>`
}

const flatThirdFloor = `
    <Flat CadastralNumber="77:01:0001001:1234">
      <Area>45.3</Area>
      <Assignation><AssignationCode>206002000000</AssignationCode></Assignation>
      <PositionInObject>
        <Levels>
          <Level Number="3" Type="01"><Position NumberOnPlan="12"/></Level>
        </Levels>
      </PositionInObject>
      <CadastralCost Value="8123456.78" Unit="383"/>
    </Flat>`

const twoRights = `
          <Right>
            <Owner><Person><FIO><Surname>Иванов</Surname><First>Иван</First><Patronymic>Иванович</Patronymic></FIO></Person></Owner>
            <Registration>
              <Name>Общая долевая собственность</Name>
              <RegNumber>77-77/001-1</RegNumber>
              <RegDate>2015-03-01</RegDate>
              <Share Numerator="1" Denominator="2"/>
            </Registration>
            <NoEncumbrance>не зарегистрировано</NoEncumbrance>
          </Right>
          <Right>
            <Owner><Organization><Name>ООО &amp;quot;Ромашка&amp;quot;</Name></Organization></Owner>
            <Registration>
              <Name>Общая долевая собственность</Name>
              <RegDate>2016-04-02</RegDate>
              <Share Denominator="2"/>
            </Registration>
            <Encumbrance><Name>Ипотека</Name></Encumbrance>
          </Right>`

func mustParse(t *testing.T, doc string) Tree {
	t.Helper()
	tree, err := ParseBytes([]byte(doc))
	require.NoError(t, err)
	return tree
}

func TestExtract_MultipleRights(t *testing.T) {
	record, err := Extract(mustParse(t, extractDoc(flatThirdFloor, twoRights)))
	require.NoError(t, err)

	assert.Equal(t, "3", record.Floor)
	assert.Equal(t, "12", record.Number)
	assert.Equal(t, "77:01:0001001:1234", record.CadastralNumber)
	assert.Equal(t, "Помещение (Квартира)", record.Type)
	assert.Equal(t, "45.3", record.Area)
	assert.Equal(t, "Иванов Иван Иванович\nООО \"Ромашка\"", record.OwnerNames)
	assert.Equal(t, "Общая долевая собственность\nОбщая долевая собственность", record.RightName)
	assert.Equal(t, "1/2\n1/2", record.PartSize)
	assert.Equal(t, "77-77/001-1\nДанные отсутствуют", record.RegNumber)
	assert.Equal(t, "2015-03-01\n2016-04-02", record.RegDate)
	assert.Equal(t, "не зарегистрировано\nИпотека", record.Encumbrance)
	assert.Equal(t, "8123456.78", record.CadastralCost)
	assert.Equal(t, "99/2019/123456", record.RequeryNumber)
}

func TestExtract_SingleRightWithSeveralOwners(t *testing.T) {
	rights := `
          <Right>
            <Owner><Person><FIO><Surname>Петров</Surname><First>Пётр</First></FIO></Person></Owner>
            <Owner><Person><FIO><Surname>Петрова</Surname><First>Анна</First><Patronymic>Сергеевна</Patronymic></FIO></Person></Owner>
            <Owner><Governance><Name>Город Москва</Name></Governance></Owner>
            <Registration><Name>Общая совместная собственность</Name></Registration>
          </Right>`

	record, err := Extract(mustParse(t, extractDoc(flatThirdFloor, rights)))
	require.NoError(t, err)

	assert.Equal(t, "Петров Пётр\nПетрова Анна Сергеевна\nГород Москва", record.OwnerNames)
	assert.Equal(t, "1/3\n1/3\n1/3", record.PartSize)
	assert.Equal(t, "Общая совместная собственность", record.RightName)
	assert.Equal(t, NoRegNumber, record.RegNumber)
	assert.Equal(t, NoEncumbranceInfo, record.Encumbrance)
}

func TestExtract_SingleRightSingleOwner(t *testing.T) {
	rights := `
          <Right>
            <Owner><Person><FIO><Surname>Сидоров</Surname><First>Олег</First></FIO></Person></Owner>
            <Registration><Name>Собственность</Name><RegNumber>77-77/002-2</RegNumber><RegDate>2018-01-01</RegDate></Registration>
            <NoEncumbrance/>
          </Right>`

	record, err := Extract(mustParse(t, extractDoc(flatThirdFloor, rights)))
	require.NoError(t, err)

	assert.Equal(t, "1", record.PartSize)
	assert.Equal(t, "Сидоров Олег", record.OwnerNames)
	assert.Equal(t, "77-77/002-2", record.RegNumber)
	assert.Equal(t, NoEncumbrance, record.Encumbrance)
}

func TestExtract_FloorRules(t *testing.T) {
	tests := []struct {
		name   string
		levels string
		floor  string
		number string
	}{
		{
			name:   "basement",
			levels: `<Level Number="0"><Position NumberOnPlan="I"/></Level>`,
			floor:  BasementFloor,
			number: "I",
		},
		{
			name:   "several levels",
			levels: `<Level Number="1"/><Level Number="2"/>`,
			floor:  "1,2",
			number: NoNumber,
		},
		{
			name:   "position on first level",
			levels: `<Level Number="4"><Position NumberOnPlan="7"/></Level><Level Number="5"><Position NumberOnPlan="8"/></Level>`,
			floor:  "4,5",
			number: "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat := `<Flat CadastralNumber="77:01:1"><PositionInObject><Levels>` + tt.levels + `</Levels></PositionInObject></Flat>`
			record, err := Extract(mustParse(t, extractDoc(flat, twoRights)))
			require.NoError(t, err)

			assert.Equal(t, tt.floor, record.Floor)
			assert.Equal(t, tt.number, record.Number)
		})
	}
}

func TestExtract_TypeMapping(t *testing.T) {
	tests := map[string]string{
		"206001000000": "Нежилое помещение",
		"206002000000": "Помещение (Квартира)",
		"206003000000": "206003000000",
	}

	for code, want := range tests {
		flat := `<Flat CadastralNumber="77:01:1"><Assignation><AssignationCode>` + code + `</AssignationCode></Assignation></Flat>`
		record, err := Extract(mustParse(t, extractDoc(flat, twoRights)))
		require.NoError(t, err)
		assert.Equal(t, want, record.Type, code)
	}
}

func rightWithoutShare(owner string) string {
	return `
          <Right>
            <Owner><Person><FIO><Surname>` + owner + `</Surname></FIO></Person></Owner>
            <Registration><Name>Общая долевая собственность</Name></Registration>
          </Right>`
}

func TestExtract_PartSizeDefaultsWithoutShare(t *testing.T) {
	tests := []struct {
		name   string
		owners []string
		want   string
	}{
		{name: "two rights", owners: []string{"Иванов", "Петров"}, want: "1/2\n1/2"},
		{name: "three rights", owners: []string{"Иванов", "Петров", "Сидоров"}, want: "1/3\n1/3\n1/3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rights strings.Builder
			for _, owner := range tt.owners {
				rights.WriteString(rightWithoutShare(owner))
			}

			record, err := Extract(mustParse(t, extractDoc(flatThirdFloor, rights.String())))
			require.NoError(t, err)

			assert.Equal(t, tt.want, record.PartSize)
			assert.Equal(t, strings.Join(tt.owners, "\n"), record.OwnerNames)
		})
	}
}

func TestExtract_DefaultsWithoutRights(t *testing.T) {
	doc := `<KPOKS><Realty><Flat CadastralNumber="77:01:2"><Area>10</Area></Flat></Realty></KPOKS>`

	record, err := Extract(mustParse(t, doc))
	require.NoError(t, err)

	assert.Equal(t, "77:01:2", record.CadastralNumber)
	assert.Equal(t, NoNumber, record.Number)
	assert.Equal(t, "", record.Floor)
	assert.Equal(t, "", record.OwnerNames)
	assert.Equal(t, "", record.PartSize)
	assert.Equal(t, NoRegNumber, record.RegNumber)
	assert.Equal(t, NoEncumbranceInfo, record.Encumbrance)
	assert.Equal(t, "", record.CadastralCost)
	assert.Equal(t, "", record.RequeryNumber)
}

func TestExtract_MissingRealtyObject(t *testing.T) {
	_, err := Extract(mustParse(t, `<KPOKS><ReestrExtract/></KPOKS>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtraction))

	var extractionErr *ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
}

func TestExtract_Idempotent(t *testing.T) {
	tree := mustParse(t, extractDoc(flatThirdFloor, twoRights))

	first, err := Extract(tree)
	require.NoError(t, err)
	second, err := Extract(tree)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExtractor_ExtractFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.xml")
	bad := filepath.Join(dir, "bad.xml")
	foreign := filepath.Join(dir, "foreign.xml")
	require.NoError(t, os.WriteFile(good, []byte(extractDoc(flatThirdFloor, twoRights)), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("<KPOKS><Realty>"), 0o644))
	require.NoError(t, os.WriteFile(foreign, []byte("<Other/>"), 0o644))

	extractor := NewExtractor(logger.Discard())

	record, err := extractor.ExtractFile(good)
	require.NoError(t, err)
	assert.Equal(t, "12", record.Number)

	_, err = extractor.ExtractFile(bad)
	assert.ErrorIs(t, err, ErrExtraction)

	_, err = extractor.ExtractFile(foreign)
	require.ErrorIs(t, err, ErrExtraction)
	assert.True(t, strings.Contains(err.Error(), foreign))

	_, err = extractor.ExtractFile(filepath.Join(dir, "absent.xml"))
	assert.Error(t, err)
}
