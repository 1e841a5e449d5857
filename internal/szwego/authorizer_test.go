package szwego

import (
	"context"
	"testing"
	"time"

	"github.com/loviiin/project-hermes/internal/repository"
	"github.com/loviiin/project-hermes/pkg/config"
	"github.com/loviiin/project-hermes/pkg/vault"
)

type fakeStore struct {
	statuses []string
	saved    []repository.SessionRecord
}

func (f *fakeStore) Save(_ context.Context, rec repository.SessionRecord) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, _, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeSink struct {
	recorded []string
}

func (f *fakeSink) Record(_ context.Context, _, status string, _ time.Duration) {
	f.recorded = append(f.recorded, status)
}

func TestAuthorizeSemVaultFalhaSemRede(t *testing.T) {
	store := &fakeStore{}
	a := NewAuthorizer(config.Defaults(), nil, nil, nil, store, nil, nil)

	res := a.AuthorizeUser(context.Background(), "u1", "login", "senha")
	if res.Success {
		t.Fatal("Sem vault não pode haver sucesso")
	}
	if res.Status != StatusUnknownError {
		t.Errorf("Esperava %s, recebi %s", StatusUnknownError, res.Status)
	}
	// A falha de pré-condição ainda precisa ser registrada.
	if len(store.statuses) != 1 || store.statuses[0] != string(StatusUnknownError) {
		t.Errorf("Status não registrado no store: %v", store.statuses)
	}
}

func TestAuthorizeCredenciaisVazias(t *testing.T) {
	v, err := vault.New("passphrase-de-teste", "")
	if err != nil {
		t.Fatalf("Erro criando vault: %v", err)
	}

	sink := &fakeSink{}
	a := NewAuthorizer(config.Defaults(), nil, v, nil, &fakeStore{}, nil, sink)

	res := a.AuthorizeUser(context.Background(), "u1", "", "")
	if res.Status != StatusInvalidCredentials {
		t.Errorf("Credenciais vazias deveriam dar %s, recebi %s", StatusInvalidCredentials, res.Status)
	}
	if len(sink.recorded) != 1 || sink.recorded[0] != string(StatusInvalidCredentials) {
		t.Errorf("Desfecho não indexado: %v", sink.recorded)
	}
}

func TestAuthorizeResultadoSempreNaTaxonomia(t *testing.T) {
	valid := map[Status]bool{}
	for _, s := range AllStatuses {
		valid[s] = true
	}

	// Browser nulo força pânico dentro do fluxo; o recover precisa devolver
	// um Result bem formado em vez de propagar.
	v, _ := vault.New("x", "")
	a := NewAuthorizer(config.Defaults(), nil, v, nil, nil, nil, nil)

	res := a.AuthorizeUser(context.Background(), "u1", "login", "senha")
	if res.Success {
		t.Fatal("Browser nulo não pode resultar em sucesso")
	}
	if !valid[res.Status] {
		t.Errorf("Status fora da taxonomia: %q", res.Status)
	}
	if res.Message == "" {
		t.Error("Falha sem mensagem explicativa")
	}
}
