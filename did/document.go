package did

// Context is the JSON-LD context every document carries.
const Context = "https://www.w3.org/ns/did/v1"

// MediaType is the content type documents are served with.
const MediaType = "application/did+json"

// Document is the identity document projected from a stored agent.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	Controller         string               `json:"controller"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Service            []Service            `json:"service"`
}

// VerificationMethod exposes the agent's registered key.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyPEM string `json:"publicKeyPem"`
}

// Service is a reachable endpoint of the agent.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// NewDocument builds the document for an agent. Only the a2a endpoint is
// projected; a missing one yields an empty serviceEndpoint.
func NewDocument(id, publicKeyPEM string, endpoints map[string]string) *Document {
	return &Document{
		Context:    []string{Context},
		ID:         id,
		Controller: id,
		VerificationMethod: []VerificationMethod{{
			ID:           id + "#key-1",
			Type:         "EcdsaSecp256r1VerificationKey2019",
			Controller:   id,
			PublicKeyPEM: publicKeyPEM,
		}},
		Service: []Service{{
			ID:              id + "#a2a",
			Type:            "AgentToAgentService",
			ServiceEndpoint: endpoints["a2a"],
		}},
	}
}
