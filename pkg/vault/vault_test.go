package vault

import (
	"errors"
	"testing"
)

func TestVaultRoundTrip(t *testing.T) {
	v, err := New("senha-super-secreta", "")
	if err != nil {
		t.Fatalf("Erro criando vault: %v", err)
	}

	payload := `{"cookies":[{"name":"sessionid","value":"abc123"}]}`
	sealed, err := v.EncryptString(payload)
	if err != nil {
		t.Fatalf("Erro encriptando: %v", err)
	}
	if sealed == payload {
		t.Fatal("O blob encriptado não pode ser igual ao plaintext")
	}

	opened, err := v.DecryptString(sealed)
	if err != nil {
		t.Fatalf("Erro decriptando: %v", err)
	}
	if opened != payload {
		t.Errorf("Round-trip falhou: esperava %q, recebi %q", payload, opened)
	}
}

func TestVaultWrongKeyFailsHard(t *testing.T) {
	v1, _ := New("chave-correta", "")
	v2, _ := New("chave-errada", "")

	sealed, err := v1.EncryptString("dados sensiveis")
	if err != nil {
		t.Fatalf("Erro encriptando: %v", err)
	}

	if _, err := v2.DecryptString(sealed); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Chave errada deveria retornar ErrDecrypt, retornou: %v", err)
	}
}

func TestVaultRequiresPassphrase(t *testing.T) {
	if _, err := New("", ""); !errors.Is(err, ErrNoPassphrase) {
		t.Errorf("Vault sem passphrase deveria falhar com ErrNoPassphrase, retornou: %v", err)
	}
}

func TestVaultRejectsTruncatedBlob(t *testing.T) {
	v, _ := New("qualquer", "")
	if _, err := v.DecryptString("AAAA"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Blob truncado deveria falhar com ErrDecrypt, retornou: %v", err)
	}
}
