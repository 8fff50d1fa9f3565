package health

// StaticTarget is the router's Probeable adapter for an upstream HTTP
// dependency identified by a fixed base URL: the model registry, the
// dispatch backend, or the auxiliary LLM endpoint. Each stage client
// (registryclient.Client, dispatcher.Dispatcher, llmclient.Client) owns its
// own request wiring, so the prober only needs the id and the URL to probe —
// it never shares the stage client's http.Client or auth headers.
type StaticTarget struct {
	id       string
	endpoint string
}

// NewStaticTarget builds a Probeable that probes endpoint under id. endpoint
// should be a full URL expected to return 2xx, 401, or 405 when the
// dependency is reachable — a GET against an OpenAI-compatible
// /chat/completions endpoint returns 405 (Method Not Allowed), which proves
// reachability without spending a completion.
func NewStaticTarget(id, endpoint string) *StaticTarget {
	return &StaticTarget{id: id, endpoint: endpoint}
}

func (t *StaticTarget) ID() string { return t.id }

func (t *StaticTarget) HealthEndpoint() string { return t.endpoint }
