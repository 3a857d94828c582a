package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"fund-session-engine/internal/common"
	"fund-session-engine/internal/config"
	"fund-session-engine/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// parseHoldings reads "BTC=1.5,ETH=10" into holdings.
func parseHoldings(value string) (models.Holdings, error) {
	holdings := models.Holdings{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		symbol, amount, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("holding %q must be SYMBOL=AMOUNT", pair)
		}
		quantity, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("invalid amount for %s: %w", symbol, err)
		}
		holdings[strings.ToUpper(strings.TrimSpace(symbol))] = quantity
	}
	return holdings, holdings.Validate()
}

func printPortfolio(portfolio *models.Portfolio) {
	symbols := make([]string, 0, len(portfolio.Holdings))
	for symbol := range portfolio.Holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	rows := make([][]string, 0, len(symbols))
	for _, symbol := range symbols {
		rows = append(rows, []string{symbol, portfolio.Holdings[symbol].String()})
	}
	common.RenderTable(os.Stdout, []string{"Instrument", "Quantity"}, rows)
	fmt.Printf("Portfolio %d, updated %s\n", portfolio.Id, common.FormatTime(&portfolio.UpdatedAt))
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User email")
	usernameFlag := flag.String("username", "", "Username (used when --email is not set)")
	setFlag := flag.String("set", "", "Replace holdings, e.g. BTC=1.5,ETH=10 (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	user, err := common.LookupUser(ctx, dbService, *emailFlag, *usernameFlag, logger)
	if err != nil {
		logger.Fatal("Failed to find user", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("PORTFOLIO: %s (%s)", user.Username, user.Email), common.DefaultWidth)

	if *setFlag != "" {
		holdings, err := parseHoldings(*setFlag)
		if err != nil {
			logger.Fatal("Invalid holdings", zap.Error(err))
		}
		portfolio, err := dbService.UpsertHoldings(ctx, user.Id, holdings)
		if err != nil {
			logger.Fatal("Failed to update holdings", zap.Error(err))
		}
		printPortfolio(portfolio)
		return
	}

	portfolio, err := dbService.GetPortfolio(ctx, user.Id)
	if err != nil {
		logger.Fatal("Failed to read portfolio", zap.Error(err))
	}
	printPortfolio(portfolio)
}
