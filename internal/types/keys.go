package types

// Metadata keys written by the pipeline itself.
const (
	KeyContentType   = "Content-Type"
	KeyResourceName  = "resourceName"
	KeyContentLength = "Content-Length"
	KeyEncoding      = "Content-Encoding"

	KeyParsedBy             = "X-TIKA:Parsed-By"
	KeyTranslatedBy         = "X-TIKA:translated_by"
	KeyEmbeddedDepth        = "X-TIKA:embedded_depth"
	KeyEmbeddedPath         = "X-TIKA:embedded_path"
	KeyEmbeddedResourcePath = "X-TIKA:embedded_resource_path"
	KeyEmbeddedParentPath   = "X-TIKA:embedded_parent_path"

	// KeyWarningPrefix prefixes a Condition name to form a warning key.
	KeyWarningPrefix = "X-TIKA:EXCEPTION:"
)

// Common descriptive keys used by extractors.
const (
	KeyTitle       = "dc:title"
	KeyCreator     = "dc:creator"
	KeyDescription = "dc:description"
	KeyLanguage    = "dc:language"
	KeySubject     = "dc:subject"
	KeyCreated     = "dcterms:created"
	KeyModified    = "dcterms:modified"
	KeyPageCount   = "xmpTPg:NPages"
)

// WarningKey returns the metadata key recording condition c.
func WarningKey(c Condition) string {
	return KeyWarningPrefix + c.String()
}
