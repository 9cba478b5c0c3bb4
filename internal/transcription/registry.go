package transcription

// DefaultPriority lists providers with a recurring monthly free quota, best first. Providers with one-time
// credit (assemblyai, deepgram) and those without a free tier (whisper) are reachable only by name.
var DefaultPriority = []string{"speechmatics", "gladia", "azure", "google"}

type Registry struct {
	providers map[string]Provider
	order     []string
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider already registered under the same name.
func (r *Registry) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Configured returns the names of providers that have credentials, in registration order.
func (r *Registry) Configured() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, name := range r.order {
		if r.providers[name].Configured() {
			out = append(out, name)
		}
	}
	return out
}

// FirstConfigured walks priority and returns the first registered provider that has credentials.
func (r *Registry) FirstConfigured(priority []string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	for _, name := range priority {
		if p, ok := r.providers[name]; ok && p.Configured() {
			return p, true
		}
	}
	return nil, false
}

type Credentials struct {
	OpenAIKey          string
	SpeechmaticsKey    string
	GladiaKey          string
	AzureSpeechKey     string
	AzureSpeechRegion  string
	AssemblyAIKey      string
	DeepgramKey        string
	GoogleCloudAPIKey  string
	GoogleCloudProject string
}

// NewDefaultRegistry registers every supported provider; providers without credentials stay registered
// but report Configured() == false.
func NewDefaultRegistry(creds Credentials, opts ...Option) *Registry {
	return NewRegistry(
		NewSpeechmatics(creds.SpeechmaticsKey, opts...),
		NewGladia(creds.GladiaKey, opts...),
		NewAzure(creds.AzureSpeechKey, creds.AzureSpeechRegion, opts...),
		NewGoogle(creds.GoogleCloudAPIKey, creds.GoogleCloudProject, opts...),
		NewAssemblyAI(creds.AssemblyAIKey, opts...),
		NewDeepgram(creds.DeepgramKey, opts...),
		NewWhisper(creds.OpenAIKey, opts...),
	)
}
