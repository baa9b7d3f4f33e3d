package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the air quality service")
	city := flag.String("city", "Dhaka", "City for the dashboard request")
	country := flag.String("country", "Bangladesh", "Country for the dashboard request")
	flag.Parse()

	fmt.Println("Air Quality API Client Example")
	fmt.Println("==============================")

	client := &http.Client{Timeout: 90 * time.Second}

	fmt.Println("\nClassifying AQI 151...")
	printJSON(client, fmt.Sprintf("%s/api/aqi/category?value=151", *baseURL))

	fmt.Println("\nFetching latest ranking (top 5)...")
	printJSON(client, fmt.Sprintf("%s/api/ranking?top=5", *baseURL))

	params := url.Values{}
	params.Set("city", *city)
	params.Set("country", *country)
	fmt.Printf("\nFetching dashboard for %s, %s...\n", *city, *country)
	printJSON(client, fmt.Sprintf("%s/api/dashboard?%s", *baseURL, params.Encode()))
}

func printJSON(client *http.Client, target string) {
	resp, err := client.Get(target)
	if err != nil {
		fmt.Printf("Error fetching %s: %v\n", target, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		fmt.Printf("HTTP %d: %s\n", resp.StatusCode, body)
		return
	}
	prettyJSON, _ := json.MarshalIndent(data, "", "  ")
	fmt.Printf("HTTP %d:\n%s\n", resp.StatusCode, prettyJSON)
}
