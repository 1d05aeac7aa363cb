package xmltree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const nsDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ns2:export xmlns:ns2="http://zakupki.gov.ru/oos/export/1" xmlns="http://zakupki.gov.ru/oos/types/1">
  <ns2:epNotificationEF2020 schemeVersion="13.1">
    <purchaseNumber>0373100038124000001</purchaseNumber>
    <ns2:purchaseResponsible>
      <responsibleOrg>
        <INN>7701234567</INN>
        <fullName>  ГБУ Тест  </fullName>
      </responsibleOrg>
    </ns2:purchaseResponsible>
    <attachmentsInfo>
      <attachmentInfo><fileName>a.docx</fileName><url>https://x/a</url></attachmentInfo>
      <attachmentInfo><fileName>   </fileName><url>https://x/b</url></attachmentInfo>
    </attachmentsInfo>
  </ns2:epNotificationEF2020>
</ns2:export>`

func TestParse_StripsNamespaces(t *testing.T) {
	root, err := Parse(strings.NewReader(nsDoc))
	require.NoError(t, err)

	assert.Equal(t, "export", root.Name)
	require.Len(t, root.Children, 1)
	notice := root.Children[0]
	assert.Equal(t, "epNotificationEF2020", notice.Name)
	assert.Equal(t, "13.1", notice.Attrs["schemeVersion"])
	_, hasXMLNS := root.Attrs["ns2"]
	assert.False(t, hasXMLNS)
}

func TestText_LeadingOnly(t *testing.T) {
	root, err := ParseBytes([]byte(`<r><a> x <b>inner</b> y </a><c><d/> tail </c></r>`))
	require.NoError(t, err)

	a := root.Children[0]
	assert.Equal(t, "x", a.Text())
	assert.Equal(t, "inner", a.Children[0].Text())
	assert.Equal(t, []string{"x"}, Resolve(root, "a"))
	assert.Empty(t, Resolve(root, "c"))
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(strings.NewReader(`<a><b></a>`))
	require.Error(t, err)

	_, err = Parse(strings.NewReader(``))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no root element")
}

func TestParse_Windows1251(t *testing.T) {
	body := `<?xml version="1.0" encoding="windows-1251"?><doc><name>Заказчик</name></doc>`
	enc, err := charmap.Windows1251.NewEncoder().String(body)
	require.NoError(t, err)

	root, err := Parse(strings.NewReader(enc))
	require.NoError(t, err)
	v, ok := First(root, "name")
	require.True(t, ok)
	assert.Equal(t, "Заказчик", v)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.xml")
	require.NoError(t, os.WriteFile(path, []byte(nsDoc), 0o644))

	root, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "export", root.Name)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
}

func TestResolve_AnyDepth(t *testing.T) {
	root, err := Parse(strings.NewReader(nsDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"0373100038124000001"}, Resolve(root, "purchaseNumber"))
	assert.Equal(t, []string{"7701234567"}, Resolve(root, "INN"))
	assert.Equal(t, []string{"7701234567"}, Resolve(root, "responsibleOrg/INN"))
	assert.Equal(t, []string{"ГБУ Тест"}, Resolve(root, "ns2:responsibleOrg/ns2:fullName"))
	assert.Equal(t, []string{"7701234567"}, Resolve(root, ".//purchaseResponsible/responsibleOrg/INN"))
}

func TestResolve_MissingIsEmpty(t *testing.T) {
	root, err := Parse(strings.NewReader(nsDoc))
	require.NoError(t, err)

	assert.Empty(t, Resolve(root, "maxPrice"))
	assert.Empty(t, Resolve(root, "responsibleOrg/maxPrice"))
	assert.Empty(t, Resolve(root, ""))
	assert.Empty(t, Resolve(nil, "INN"))

	_, ok := First(root, "maxPrice")
	assert.False(t, ok)
}

func TestResolve_RepeatedInDocumentOrder(t *testing.T) {
	root, err := Parse(strings.NewReader(`<r><a><v>1</v></a><b><a><v>2</v></a></b><a><v> </v></a><a><v>3</v></a></r>`))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, Resolve(root, "a/v"))
	assert.Equal(t, []string{"1", "2", "3"}, Resolve(root, "v"))
}

func TestResolveNodes_WhitespaceValuesExcludedFromResolve(t *testing.T) {
	root, err := Parse(strings.NewReader(nsDoc))
	require.NoError(t, err)

	nodes := ResolveNodes(root, "attachmentInfo")
	require.Len(t, nodes, 2)
	assert.Equal(t, []string{"a.docx"}, Resolve(root, "attachmentInfo/fileName"))

	name, ok := First(nodes[1], "fileName")
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestSplitLocator(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"INN", []string{"INN"}},
		{"ns5:INN", []string{"INN"}},
		{".//okpd2/code", []string{"okpd2", "code"}},
		{"//a//b", []string{"a", "b"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitLocator(tt.in))
		})
	}
}
