package twiliowhatsapp

import "testing"

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("missing credentials should be an error")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("missing from number should be an error")
	}
}

func TestWhatsAppAddress(t *testing.T) {
	cases := map[string]string{
		"whatsapp:+15550001111": "whatsapp:+15550001111",
		"+15550001111":          "whatsapp:+15550001111",
		"15550001111":           "whatsapp:+15550001111",
	}
	for in, want := range cases {
		if got := whatsAppAddress(in); got != want {
			t.Errorf("whatsAppAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
