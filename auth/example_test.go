package auth_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/staffcache/auth"
)

func ExampleTokenSource() {
	key := []byte("example-signing-key-example-key!")
	src, _ := auth.NewTokenSource(auth.TokenConfig{
		Issuer:  "staffcache",
		Subject: "svc-cache",
		Roles:   []string{"reader"},
	}, key)

	token, _ := src.Token(context.Background())

	v := auth.NewVerifier(auth.VerifierConfig{Issuer: "staffcache"}, auth.NewStaticKeyProvider(key))
	id, err := v.Verify(context.Background(), token)
	if err != nil {
		fmt.Println("verify:", err)
		return
	}
	fmt.Println(id.Principal, id.HasRole("reader"))
	// Output:
	// svc-cache true
}
