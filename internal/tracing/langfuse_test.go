package tracing

import "testing"

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{},
		{PublicKey: "pk"},
		{SecretKey: "sk"},
	}
	for _, cfg := range cases {
		h, flush, ok := Setup(cfg)
		if ok || h != nil || flush != nil {
			t.Errorf("Setup(%+v) should be disabled", cfg)
		}
	}
}

func TestInstall_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	flush, ok := Install(Config{})
	if ok {
		t.Fatal("expected tracing disabled")
	}
	flush()
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "https://cloud.langfuse.com")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-lf")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-lf")

	cfg := ConfigFromEnv()
	if !cfg.Enabled() || cfg.Host != "https://cloud.langfuse.com" {
		t.Errorf("unexpected config %+v", cfg)
	}
}
