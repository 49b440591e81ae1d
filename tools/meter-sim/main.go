// meter-sim posts synthetic meter readings against a running logger, rate
// limited to a configurable sustained readings-per-second.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080/readings", "Target URL for ingestion")
	channels := flag.Int("channels", 4, "Number of simulated channels")
	duration := flag.Duration("d", 30*time.Second, "Duration of the simulation")
	rps := flag.Int("rps", 1000, "Readings per second limit")
	flag.Parse()

	log.Printf("Starting meter simulation against %s", *targetURL)
	log.Printf("Channels: %d, Duration: %s, RPS: %d", *channels, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *channels; i++ {
		wg.Add(1)
		go func(channelID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}
			channel := fmt.Sprintf("sim-meter-%02d", channelID)

			for {
				select {
				case <-ctx.Done():
					return
				default:
					if err := limiter.Wait(ctx); err != nil {
						return
					}

					// slow sine sweep with a fixed offset per channel, so
					// duplicate-window behavior is observable in the logger
					now := time.Now()
					value := 230.0 + 5.0*math.Sin(float64(now.Unix()%60)/60*2*math.Pi) + float64(channelID)
					payload := fmt.Sprintf(`{"channel": "%s", "value": %.3f, "time_ms": %d}`,
						channel, value, now.UnixMilli())

					req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewBufferString(payload))
					if err != nil {
						continue // Should not happen
					}
					req.Header.Set("Content-Type", "application/json")

					resp, err := client.Do(req)
					if err != nil {
						errorCount.Add(1)
						continue
					}

					if resp.StatusCode == http.StatusAccepted {
						successCount.Add(1)
					} else {
						errorCount.Add(1)
					}
					resp.Body.Close()
				}
			}
		}(i)
	}

	wg.Wait()

	totalReadings := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalReadings) / duration.Seconds()

	log.Println("Simulation finished.")
	log.Printf("Total Readings: %d", totalReadings)
	log.Printf("Accepted (202): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
