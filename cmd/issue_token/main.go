// Command issue_token mints staff bearer tokens for the library service, and
// can generate the RSA key pair used to sign and verify them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"libraryhub/internal/stafftoken"
)

func main() {
	var (
		keyPath   = flag.String("key", "secrets/staff-token/private.pem", "RSA private key (PEM)")
		keyID     = flag.String("kid", stafftoken.DefaultKeyID, "key id written to the token header")
		issuer    = flag.String("issuer", "", "token issuer; must be listed in staffTokenIssuers")
		audience  = flag.String("audience", stafftoken.DefaultAudience, "token audience")
		subject   = flag.String("sub", "", "staff member id")
		name      = flag.String("name", "", "staff member display name")
		ttl       = flag.Duration("ttl", stafftoken.DefaultTTL, "token lifetime")
		genPublic = flag.String("generate", "", "write a new key pair to -key and this public key path, then exit")
		revoke    = flag.String("revoke", "", "revoke this token until it expires, then exit")
		redisAddr = flag.String("redis", os.Getenv("REDIS_ADDR"), "redis address used for revocation")
	)
	flag.Parse()

	if *genPublic != "" {
		if err := stafftoken.WriteKeyPair(*keyPath, *genPublic); err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s and %s\n", *keyPath, *genPublic)
		return
	}

	if *revoke != "" {
		if err := revokeToken(*redisAddr, os.Getenv("REDIS_PASSWORD"), *revoke); err != nil {
			fail(err)
		}
		return
	}

	if *issuer == "" || *subject == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -issuer <issuer> -sub <staff id> [-name <name>] [-ttl 8h]\n", os.Args[0])
		os.Exit(2)
	}
	signer, err := stafftoken.NewSigner(stafftoken.SignerOptions{
		PrivateKeyPath: *keyPath,
		KeyID:          *keyID,
		Issuer:         *issuer,
		Audience:       *audience,
		TTL:            *ttl,
	})
	if err != nil {
		fail(err)
	}
	token, err := signer.Sign(*subject, *name)
	if err != nil {
		fail(err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
}

func revokeToken(addr, password, token string) error {
	if addr == "" {
		return errors.New("-redis or REDIS_ADDR is required to revoke")
	}
	claims, err := stafftoken.Inspect(token)
	if err != nil {
		return err
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return errors.New("token has no jti or expiry")
	}
	revoker := stafftoken.NewRedisRevoker(addr, password)
	defer revoker.Close()
	if err := revoker.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "revoked %s (sub %s) until %s\n", claims.ID, claims.Subject, claims.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "issue_token: %v\n", err)
	os.Exit(1)
}
