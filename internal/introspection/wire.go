package introspection

// JSON shapes of an introspection result.

type wireResult struct {
	Schema *wireSchema `json:"__schema"`
}

type wireSchema struct {
	QueryType        *wireName       `json:"queryType"`
	MutationType     *wireName       `json:"mutationType"`
	SubscriptionType *wireName       `json:"subscriptionType"`
	Types            []wireType      `json:"types"`
	Directives       []wireDirective `json:"directives"`
}

type wireName struct {
	Name string `json:"name"`
}

type wireType struct {
	Kind           string           `json:"kind"`
	Name           string           `json:"name"`
	Description    *string          `json:"description"`
	Fields         []wireField      `json:"fields"`
	InputFields    []wireInputValue `json:"inputFields"`
	Interfaces     []wireTypeRef    `json:"interfaces"`
	EnumValues     []wireEnumValue  `json:"enumValues"`
	PossibleTypes  []wireTypeRef    `json:"possibleTypes"`
	SpecifiedByURL *string          `json:"specifiedByURL,omitempty"`
	IsOneOf        bool             `json:"isOneOf,omitempty"`
}

type wireTypeRef struct {
	Kind   string       `json:"kind"`
	Name   *string      `json:"name"`
	OfType *wireTypeRef `json:"ofType"`
}

type wireField struct {
	Name              string           `json:"name"`
	Description       *string          `json:"description"`
	Args              []wireInputValue `json:"args"`
	Type              wireTypeRef      `json:"type"`
	IsDeprecated      bool             `json:"isDeprecated"`
	DeprecationReason *string          `json:"deprecationReason"`
}

type wireInputValue struct {
	Name              string      `json:"name"`
	Description       *string     `json:"description"`
	Type              wireTypeRef `json:"type"`
	DefaultValue      *string     `json:"defaultValue"`
	IsDeprecated      bool        `json:"isDeprecated,omitempty"`
	DeprecationReason *string     `json:"deprecationReason,omitempty"`
}

type wireEnumValue struct {
	Name              string  `json:"name"`
	Description       *string `json:"description"`
	IsDeprecated      bool    `json:"isDeprecated"`
	DeprecationReason *string `json:"deprecationReason"`
}

type wireDirective struct {
	Name         string           `json:"name"`
	Description  *string          `json:"description"`
	Locations    []string         `json:"locations"`
	Args         []wireInputValue `json:"args"`
	IsRepeatable bool             `json:"isRepeatable,omitempty"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
