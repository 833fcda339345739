// Command mockbackend is a small demonstration target server: a gin
// server exposing /ping, /flaky, and /slow so the end-to-end load test
// scenarios have something real to hit.
package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	port := getEnv("PORT", "9090")

	if gin.Mode() == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "token": "demo-access-token"})
	})

	router.GET("/flaky", func(c *gin.Context) {
		if rand.Intn(2) == 0 {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
	})

	router.GET("/slow", func(c *gin.Context) {
		delayMs := 200
		if v := c.Query("delay_ms"); v != "" {
			if parsed, err := time.ParseDuration(v + "ms"); err == nil {
				delayMs = int(parsed.Milliseconds())
			}
		}
		time.Sleep(time.Duration(delayMs) * time.Millisecond)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "delayed_ms": delayMs})
	})

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("shutting down mock backend")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("mock backend listening on :%s", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
