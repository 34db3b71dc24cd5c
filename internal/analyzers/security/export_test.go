package security

var (
	ProbeShannonEntropy = shannonEntropy
	ProbeRiskLevel      = riskLevel
)
