package document

// Hooks for exercising unexported helpers from the external test package.
var (
	ProbePDFDate    = pdfDate
	ProbeCountLines = countLines
)
