package main

import (
	"encoding/json"
	"fmt"
)

type riskLevel string

const (
	riskLow    riskLevel = "Low"
	riskMedium riskLevel = "Medium"
	riskHigh   riskLevel = "High"
)

type stockLevel string

const (
	stockHealthy  stockLevel = "Healthy"
	stockLow      stockLevel = "Low"
	stockCritical stockLevel = "Critical"
)

type productRisk struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RiskScore int       `json:"riskScore"`
	RiskLevel riskLevel `json:"riskLevel"`
	Reason    string    `json:"reason"`
	Location  string    `json:"location"`
}

type worldEvent struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Region  string `json:"region"`
	Impact  string `json:"impact"`
}

type warehouseStock struct {
	ProductID   string     `json:"productId"`
	ProductName string     `json:"productName"`
	Level       stockLevel `json:"level"`
	Quantity    int        `json:"quantity"`
}

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type warehouse struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Location location         `json:"location"`
	Stock    []warehouseStock `json:"stock"`
}

var productRisks = []productRisk{
	{ID: "prod-001", Name: "Semiconductors", RiskScore: 85, RiskLevel: riskHigh, Reason: "Geopolitical tensions and trade restrictions impacting key manufacturing regions.", Location: "East Asia"},
	{ID: "prod-002", Name: "Lithium-Ion Batteries", RiskScore: 78, RiskLevel: riskHigh, Reason: "Concentrated raw material sourcing and increasing demand from EV market.", Location: "South America, Australia"},
	{ID: "prod-003", Name: "Wheat & Grains", RiskScore: 65, RiskLevel: riskMedium, Reason: "Climate change affecting crop yields and regional conflicts disrupting exports.", Location: "Eastern Europe"},
	{ID: "prod-004", Name: "Medical PPE", RiskScore: 55, RiskLevel: riskMedium, Reason: "Sudden demand spikes due to health crises, reliance on specific manufacturing hubs.", Location: "Southeast Asia"},
	{ID: "prod-005", Name: "Lumber", RiskScore: 40, RiskLevel: riskLow, Reason: "Wildfires and logistical bottlenecks causing temporary price volatility.", Location: "North America"},
}

var worldEvents = []worldEvent{
	{ID: "evt-001", Title: "Trade Summit Concludes with New Tariffs", Summary: "A recent global trade summit has resulted in the announcement of new tariffs on electronic components, affecting major export markets.", Region: "Global", Impact: "High impact on electronics and semiconductor supply chains."},
	{ID: "evt-002", Title: "Drought Conditions Worsen in Key Agricultural Zone", Summary: "Extended drought is threatening crop yields in a region responsible for 30% of global grain exports, raising concerns about food security.", Region: "Eastern Europe", Impact: "Medium impact on food commodities and logistics."},
	{ID: "evt-003", Title: "Breakthrough in Battery Technology Announced", Summary: "A university research lab has announced a new battery chemistry that could reduce reliance on cobalt, a critical and controversial raw material.", Region: "North America", Impact: "Potential long-term positive impact on EV and battery supply chains."},
	{ID: "evt-004", Title: "Shipping Lane Congestion at Major Port", Summary: "A major maritime shipping port is experiencing unprecedented congestion, leading to significant delays for container ships and rising freight costs.", Region: "Southeast Asia", Impact: "High impact on all goods transported by sea freight."},
}

var warehouses = []warehouse{
	{ID: "wh-001", Name: "Taipei Distribution Center", Location: location{Lat: 25.0330, Lng: 121.5654}, Stock: []warehouseStock{
		{ProductID: "prod-001", ProductName: "Semiconductors", Level: stockCritical, Quantity: 5000},
		{ProductID: "prod-004", ProductName: "Medical PPE", Level: stockHealthy, Quantity: 100000},
	}},
	{ID: "wh-002", Name: "Rotterdam Mega Terminal", Location: location{Lat: 51.9244, Lng: 4.4777}, Stock: []warehouseStock{
		{ProductID: "prod-003", ProductName: "Wheat & Grains", Level: stockLow, Quantity: 25000},
		{ProductID: "prod-005", ProductName: "Lumber", Level: stockHealthy, Quantity: 80000},
	}},
	{ID: "wh-003", Name: "Nevada Gigafactory", Location: location{Lat: 39.5501, Lng: -119.4526}, Stock: []warehouseStock{
		{ProductID: "prod-002", ProductName: "Lithium-Ion Batteries", Level: stockLow, Quantity: 15000},
		{ProductID: "prod-001", ProductName: "Semiconductors", Level: stockHealthy, Quantity: 500000},
	}},
	{ID: "wh-004", Name: "Singapore Logistics Hub", Location: location{Lat: 1.3521, Lng: 103.8198}, Stock: []warehouseStock{
		{ProductID: "prod-001", ProductName: "Semiconductors", Level: stockLow, Quantity: 20000},
		{ProductID: "prod-004", ProductName: "Medical PPE", Level: stockCritical, Quantity: 10000},
	}},
}

const navigateToMapViewTool = "navigateToMapView"

// systemInstruction briefs the assistant with the dashboard data.
func systemInstruction() (string, error) {
	risks, err := json.Marshal(productRisks)
	if err != nil {
		return "", fmt.Errorf("failed to encode product risks: %w", err)
	}
	events, err := json.Marshal(worldEvents)
	if err != nil {
		return "", fmt.Errorf("failed to encode world events: %w", err)
	}
	stock, err := json.Marshal(warehouses)
	if err != nil {
		return "", fmt.Errorf("failed to encode warehouses: %w", err)
	}

	return fmt.Sprintf(`You are a world-class supply chain risk analyst AI assistant. Your name is ChainGuard. You provide concise, data-driven insights to help specialists understand and mitigate risks based on this data:
Products at Risk: %s
Relevant World Events: %s
Warehouse Locations & Stock: %s
You have a tool available: %q. Call this function when the user asks to see warehouse locations, stock locations on a map, or a similar request. Inform the user that you are showing them the map.
Keep your answers brief and to the point. Start the conversation by introducing yourself and asking how you can help.`,
		risks, events, stock, navigateToMapViewTool), nil
}
