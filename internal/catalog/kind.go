package catalog

// Kind is the closed set of field kinds the synthesizer understands.
type Kind string

const (
	KindShortText   Kind = "short-text"
	KindLongText    Kind = "long-text"
	KindURL         Kind = "url"
	KindURLMultiple Kind = "url-multiple"
	KindInteger     Kind = "integer"
	KindReal        Kind = "real"
	KindCurrency    Kind = "currency"
	KindBoolean     Kind = "boolean"
	KindChoice      Kind = "single-choice"
	KindMultiChoice Kind = "multi-choice"
	KindDate        Kind = "date"
	KindDatetime    Kind = "datetime"
	KindReference   Kind = "single-reference"
	KindReferences  Kind = "multi-reference"
	KindUnsupported Kind = "unsupported"
)

var kindByType = map[string]Kind{
	"varchar":            KindShortText,
	"email":              KindShortText,
	"phone":              KindShortText,
	"password":           KindShortText,
	"barcode":            KindShortText,
	"colorpicker":        KindShortText,
	"url":                KindURL,
	"urlMultiple":        KindURLMultiple,
	"text":               KindLongText,
	"wysiwyg":            KindLongText,
	"int":                KindInteger,
	"autoincrement":      KindInteger,
	"float":              KindReal,
	"decimal":            KindReal,
	"currency":           KindCurrency,
	"bool":               KindBoolean,
	"enum":               KindChoice,
	"multiEnum":          KindMultiChoice,
	"array":              KindMultiChoice,
	"checklist":          KindMultiChoice,
	"date":               KindDate,
	"datetime":           KindDatetime,
	"datetimeOptional":   KindDatetime,
	"link":               KindReference,
	"linkOne":            KindReference,
	"file":               KindReference,
	"image":              KindReference,
	"linkMultiple":       KindReferences,
	"attachmentMultiple": KindReferences,
}

// KindOf maps an EspoCRM field type to its Kind.
func KindOf(espoType string) Kind {
	if k, ok := kindByType[espoType]; ok {
		return k
	}
	return KindUnsupported
}

// Reference reports whether values of this kind are record ids.
func (k Kind) Reference() bool {
	return k == KindReference || k == KindReferences
}
