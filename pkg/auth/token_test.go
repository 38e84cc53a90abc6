package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/pkg/config"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

var testCfg = config.AuthConfig{JWTSecret: "secret", JWTIssuer: "settlement-edge"}

func TestMintAndParseActorToken(t *testing.T) {
	actorID := uuid.New()
	token, err := MintActorToken(testCfg, time.Now().UTC(), 5*time.Minute, actorID, enums.ActorRoleSeller)
	if err != nil {
		t.Fatalf("mint actor token: %v", err)
	}

	claims, err := ParseActorToken(testCfg, token)
	if err != nil {
		t.Fatalf("parse actor token: %v", err)
	}
	if claims.ActorID != actorID {
		t.Fatalf("expected actor %s, got %s", actorID, claims.ActorID)
	}
	if claims.Role != enums.ActorRoleSeller {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Subject != actorID.String() {
		t.Fatalf("subject not set")
	}
}

func TestParseActorTokenRejects(t *testing.T) {
	actorID := uuid.New()
	now := time.Now().UTC()

	expired, err := MintActorToken(testCfg, now.Add(-time.Hour), time.Minute, actorID, enums.ActorRoleAdmin)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	otherIssuer, err := MintActorToken(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "elsewhere"}, now, time.Minute, actorID, enums.ActorRoleAdmin)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	wrongKey, err := MintActorToken(config.AuthConfig{JWTSecret: "other", JWTIssuer: "settlement-edge"}, now, time.Minute, actorID, enums.ActorRoleAdmin)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	systemRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, ActorClaims{
		ActorID: actorID,
		Role:    enums.ActorRoleSystem,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "settlement-edge",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, token := range map[string]string{
		"expired":      expired,
		"other issuer": otherIssuer,
		"wrong key":    wrongKey,
		"system role":  systemRole,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseActorToken(testCfg, token); err == nil {
				t.Fatalf("expected %s token to be rejected", name)
			}
		})
	}
}

func TestMintActorTokenValidates(t *testing.T) {
	now := time.Now()
	if _, err := MintActorToken(config.AuthConfig{}, now, time.Minute, uuid.New(), enums.ActorRoleBuyer); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	if _, err := MintActorToken(testCfg, now, 0, uuid.New(), enums.ActorRoleBuyer); err == nil {
		t.Fatal("expected zero ttl to fail")
	}
	if _, err := MintActorToken(testCfg, now, time.Minute, uuid.Nil, enums.ActorRoleBuyer); err == nil {
		t.Fatal("expected nil actor to fail")
	}
}
