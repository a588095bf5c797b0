package shared

// Receivables permissions declared for document operations.
const (
	PermDocumentCreate = "receivables.document.create"
	PermDocumentEdit   = "receivables.document.edit"
	PermDocumentIssue  = "receivables.document.issue"
	PermDocumentVoid   = "receivables.document.void"
	PermDocumentClose  = "receivables.document.close"
)

// ReceivablesScopes lists all permissions related to receivable documents.
func ReceivablesScopes() []string {
	return []string{
		PermDocumentCreate,
		PermDocumentEdit,
		PermDocumentIssue,
		PermDocumentVoid,
		PermDocumentClose,
	}
}
