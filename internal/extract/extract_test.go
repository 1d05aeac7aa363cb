package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/eis-ingest/internal/model"
	"github.com/sells-group/eis-ingest/internal/schema"
	"github.com/sells-group/eis-ingest/internal/xmltree"
)

const testSchema = `
contract:
  - {field: notice_number, locator: purchaseNumber, policy: first}
  - {field: subject, locator: purchaseObjectInfo}
  - {field: price, locator: maxPrice, policy: first}
  - {field: published_at, locator: publishDTInEIS, policy: first}
  - {field: placing_way, locator: placingWay/name}
customer:
  - {field: tax_id, locator: responsibleOrgInfo/INN}
  - {field: name, locator: responsibleOrgInfo/fullName}
  - {field: legal_address, locator: responsibleOrgInfo/postAddress}
  - {field: contact_phone, locator: contactPhone}
contact:
  - contactPersonInfo/lastName
  - contactPersonInfo/firstName
  - contactPersonInfo/middleName
platform:
  - {field: name, locator: ETP/name}
  - {field: url, locator: ETP/url}
classification:
  - OKPDCode
  - okpd2/code
links:
  print_forms:
    - {locator: printFormInfo/url}
  attachments:
    - {locator: attachmentInfo, file_name: fileName, url: url}
`

const notice = `<?xml version="1.0" encoding="UTF-8"?>
<ns2:export xmlns:ns2="http://zakupki.gov.ru/oos/export/1" xmlns="http://zakupki.gov.ru/oos/types/1">
  <ns2:epNotification>
    <purchaseNumber>0373100000124000001</purchaseNumber>
    <purchaseObjectInfo>Разработка ПО</purchaseObjectInfo>
    <purchaseObjectInfo>Сопровождение</purchaseObjectInfo>
    <publishDTInEIS>2024-03-01T10:15:00+03:00</publishDTInEIS>
    <maxPrice>1500000.50</maxPrice>
    <placingWay><name>Электронный аукцион</name></placingWay>
    <purchaseResponsible>
      <responsibleOrgInfo>
        <INN>7701234567</INN>
        <fullName>ГБУ Тест</fullName>
        <postAddress>Москва, ул. Тверская, 1</postAddress>
      </responsibleOrgInfo>
      <responsibleInfo>
        <contactPersonInfo>
          <lastName>Иванов</lastName>
          <firstName>Иван</firstName>
          <middleName>   </middleName>
        </contactPersonInfo>
        <contactPhone>111</contactPhone>
      </responsibleInfo>
    </purchaseResponsible>
    <ETP><name>Sberbank-AST</name><url>https://sberbank-ast.ru</url></ETP>
    <okpd2><code>62.01.0</code></okpd2>
    <printFormInfo><url>https://zakupki.gov.ru/print/1</url></printFormInfo>
    <attachments>
      <attachmentInfo><fileName>tz.docx</fileName><url>https://zakupki.gov.ru/f/1</url></attachmentInfo>
      <attachmentInfo><fileName>no-url.docx</fileName></attachmentInfo>
      <attachmentInfo><url>https://zakupki.gov.ru/f/3</url></attachmentInfo>
      <attachmentInfo><fileName>draft.pdf</fileName><url>https://zakupki.gov.ru/f/4</url></attachmentInfo>
    </attachments>
  </ns2:epNotification>
</ns2:export>`

func loadFixture(t *testing.T) (*xmltree.Node, *schema.Schema) {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema), model.NewContract44)
	require.NoError(t, err)
	root, err := xmltree.ParseBytes([]byte(notice))
	require.NoError(t, err)
	return root, s
}

func TestApply(t *testing.T) {
	root, s := loadFixture(t)
	x := Apply(root, s)

	assert.Equal(t, model.NewContract44, x.Family)
	assert.Equal(t, "Разработка ПО; Сопровождение", x.Contract["subject"])
	assert.Equal(t, "0373100000124000001", x.Contract["notice_number"])
	assert.Equal(t, "7701234567", x.Customer["tax_id"])
	assert.Equal(t, "Sberbank-AST", x.Platform["name"])
	assert.Equal(t, "https://sberbank-ast.ru", x.Platform["url"])
	require.NotNil(t, x.Contact)
	assert.Equal(t, "Иванов Иван", *x.Contact)
	assert.Equal(t, "62.01", x.ClassificationCode)
	assert.Equal(t, "62.01.0", x.RawClassification)

	_, hasActual := x.Customer["actual_address"]
	assert.False(t, hasActual)
}

func TestApply_LinkDropout(t *testing.T) {
	root, s := loadFixture(t)
	x := Apply(root, s)

	assert.Equal(t, []model.DocumentLink{
		{FileName: schema.DefaultPrintFormName, URL: "https://zakupki.gov.ru/print/1"},
		{FileName: "tz.docx", URL: "https://zakupki.gov.ru/f/1"},
		{FileName: "draft.pdf", URL: "https://zakupki.gov.ru/f/4"},
	}, x.Links)
}

func TestComposeContact(t *testing.T) {
	parts := []string{"lastName", "firstName", "middleName"}
	tests := []struct {
		name string
		doc  string
		want *string
	}{
		{"all parts", "<p><lastName>Петров</lastName><firstName>Пётр</firstName><middleName>Петрович</middleName></p>", model.StringPtr("Петров Пётр Петрович")},
		{"blank middle", "<p><lastName>Петров</lastName><firstName>Пётр</firstName><middleName> </middleName></p>", model.StringPtr("Петров Пётр")},
		{"only first", "<p><firstName>Пётр</firstName></p>", model.StringPtr("Пётр")},
		{"none", "<p><lastName/><firstName>  </firstName></p>", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := xmltree.ParseBytes([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ComposeContact(root, parts))
		})
	}
}

func TestNormalizeClassificationCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"21.10", "21.1"},
		{"21.11", "21.11"},
		{"21.11.00.25", "21.11.00.25"},
		{"62.01.0", "62.01"},
		{"62.0", "62"},
		{"62.01", "62.01"},
		{"62.01.10", "62.01.10"},
		{" 21.10 ", "21.1"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeClassificationCode(tt.in))
		})
	}
}

func TestClassificationFallback(t *testing.T) {
	s, err := schema.Parse([]byte("classification:\n  - OKPDCode\n  - okpd2/code\n"), model.Recouped44)
	require.NoError(t, err)

	root, err := xmltree.ParseBytes([]byte("<c><OKPDCode>21.10</OKPDCode><okpd2><code>99.99</code></okpd2></c>"))
	require.NoError(t, err)
	assert.Equal(t, "21.1", Apply(root, s).ClassificationCode)

	root, err = xmltree.ParseBytes([]byte("<c><okpd2><code>99.99</code></okpd2></c>"))
	require.NoError(t, err)
	assert.Equal(t, "99.99", Apply(root, s).ClassificationCode)

	root, err = xmltree.ParseBytes([]byte("<c/>"))
	require.NoError(t, err)
	assert.Empty(t, Apply(root, s).ClassificationCode)
}

func TestExtractor_UnknownFamily(t *testing.T) {
	_, s := loadFixture(t)
	e := New(schema.NewSet(s))

	root, err := xmltree.ParseBytes([]byte(notice))
	require.NoError(t, err)

	_, err = e.Extract(root, model.Recouped223)
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrSchemaNotFound))

	x, err := e.Extract(root, model.NewContract44)
	require.NoError(t, err)
	assert.Equal(t, "7701234567", x.Customer["tax_id"])
}

func TestProjections(t *testing.T) {
	root, s := loadFixture(t)
	x := Apply(root, s)

	c := x.CustomerRecord()
	assert.Equal(t, "7701234567", c.TaxID)
	assert.Equal(t, "ГБУ Тест", model.Deref(c.Name))
	assert.Equal(t, "111", model.Deref(c.ContactPhone))
	assert.Nil(t, c.ActualAddress)
	assert.Nil(t, c.ContactEmail)

	p := x.PlatformRecord()
	assert.Equal(t, "Sberbank-AST", p.Name)
	assert.Equal(t, "https://sberbank-ast.ru", model.Deref(p.URL))

	k := x.ContractRecord()
	require.NotNil(t, k.Price)
	assert.InDelta(t, 1500000.50, *k.Price, 0.001)
	require.NotNil(t, k.PublishedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 7, 15, 0, 0, time.UTC), k.PublishedAt.UTC())
	assert.Equal(t, map[string]string{"placing_way": "Электронный аукцион"}, k.Attributes)
	assert.Nil(t, k.Number)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234.50", 1234.50, true},
		{"1 234,50", 1234.50, true},
		{"10; 20", 10, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 0.0001, tt.in)
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-03-01", "2024-03-01+03:00", "2024-03-01T10:00:00", "2024-03-01T10:00:00Z", "2024-03-01T10:00:00.123+03:00"} {
		_, ok := ParseDate(in)
		assert.True(t, ok, in)
	}
	_, ok := ParseDate("01.03.2024")
	assert.False(t, ok)
}

func TestContract_UnparseableKeptAsAttributes(t *testing.T) {
	x := &Extraction{Family: model.Recouped223, Contract: Fields{"price": "договорная", "ends_at": "soon", "number": "42"}}
	c := x.ContractRecord()
	assert.Nil(t, c.Price)
	assert.Nil(t, c.EndsAt)
	assert.Equal(t, "42", model.Deref(c.Number))
	assert.Equal(t, map[string]string{"price": "договорная", "ends_at": "soon"}, c.Attributes)
}
