// Command token prints a development bearer token signed with JWT_SECRET.
//
//	token -user u1 -name Alice
package main

import (
	"dm-core/auth"
	"dm-core/domain"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	userID := flag.String("user", "", "stable user id")
	name := flag.String("name", "", "display name")
	image := flag.String("image", "", "avatar url")
	duration := flag.Duration("duration", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET and -user are required")
		os.Exit(2)
	}
	token, err := auth.NewIssuer(secret, *duration).Generate(domain.User{
		ID: domain.UserID(*userID), Name: *name, Image: *image,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "token error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
