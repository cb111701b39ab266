package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const loginPage = `<html><body>
<form method="post" action="/login">
  <input type="hidden" name="_token" value="tok-abc123">
  <input type="text" name="login_id">
  <input type="password" name="password">
</form>
</body></html>`

func TestLogin(t *testing.T) {
	t.Parallel()
	var gotForm map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"login_id": r.PostFormValue("login_id"),
			"password": r.PostFormValue("password"),
			"_token":   r.PostFormValue("_token"),
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", ct)
		}
		w.Header().Add("Set-Cookie", "laravel_session=sess1; Path=/")
		w.Header().Add("Set-Cookie", "XSRF-TOKEN=xsrf1; Path=/")
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL+"/login", srv.URL+"/info")
	sess, err := c.Login(context.Background(), "user1", "pass1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if gotForm["login_id"] != "user1" || gotForm["password"] != "pass1" || gotForm["_token"] != "tok-abc123" {
		t.Fatalf("unexpected form: %v", gotForm)
	}
	want := "laravel_session=sess1; Path=/; XSRF-TOKEN=xsrf1; Path=/"
	if sess.Cookie != want {
		t.Fatalf("cookie = %q, want %q", sess.Cookie, want)
	}
}

func TestLoginTokenMissing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><form></form></body></html>`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/login", srv.URL+"/info")
	_, err := c.Login(context.Background(), "u", "p")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv.URL+"/login", srv.URL+"/info")
	_, err := c.Login(context.Background(), "u", "bad")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestFetchListSendsCookie(t *testing.T) {
	t.Parallel()
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte(listPage))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL+"/login", srv.URL+"/info")
	got, err := c.FetchList(context.Background(), Session{Cookie: "laravel_session=sess1"})
	if err != nil {
		t.Fatalf("FetchList: %v", err)
	}
	if gotCookie != "laravel_session=sess1" {
		t.Fatalf("cookie header = %q", gotCookie)
	}
	if len(got) == 0 {
		t.Fatal("expected parsed notices")
	}
}
