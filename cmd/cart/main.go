// Command cart keeps a local shopping cart for the gallery storefront and
// builds the WhatsApp checkout link.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"gallery/cart"
)

type options struct {
	api   string
	file  string
	phone string
}

func main() {
	log.SetFlags(0)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("cart: .env not loaded: %v", err)
	}
	decimal.MarshalJSONWithoutQuotes = true

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	var store *cart.Store

	root := &cobra.Command{
		Use:          "cart",
		Short:        "Local shopping cart for the gallery storefront",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			store = cart.Open(cart.FileStorage{Path: opts.file})
		},
	}
	root.PersistentFlags().StringVar(&opts.api, "api", envOr("GALLERY_API_URL", "http://localhost:8000"), "storefront API base URL")
	root.PersistentFlags().StringVar(&opts.file, "file", envOr("CART_FILE", "art-gallery-cart.json"), "cart file")

	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add one unit of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := fetchProduct(cmd.Context(), opts.api, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			c, err := store.Add(p)
			if err != nil {
				return err
			}
			printCart(c)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove one unit of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := store.Remove(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			printCart(c)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printCart(store.Items())
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("cart cleared")
			return nil
		},
	}

	checkout := &cobra.Command{
		Use:   "checkout",
		Short: "Print the WhatsApp order link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := store.Items()
			if len(c) == 0 {
				return errors.New("cart is empty")
			}
			if opts.phone == "" {
				return errors.New("WHATSAPP_PHONE (or --phone) must be set")
			}
			fmt.Println(cart.WhatsAppLink(opts.phone, cart.Message(c)))
			return nil
		},
	}
	checkout.Flags().StringVar(&opts.phone, "phone", os.Getenv("WHATSAPP_PHONE"), "seller WhatsApp number")

	root.AddCommand(add, remove, list, clearCmd, checkout)
	return root
}

func fetchProduct(ctx context.Context, api, id string) (cart.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	endpoint := strings.TrimRight(api, "/") + "/products/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return cart.Product{}, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return cart.Product{}, fmt.Errorf("fetch product: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return cart.Product{}, fmt.Errorf("product %s not found", id)
	}
	if res.StatusCode != http.StatusOK {
		return cart.Product{}, fmt.Errorf("fetch product: %s", res.Status)
	}
	var p cart.Product
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return cart.Product{}, fmt.Errorf("decode product: %w", err)
	}
	return p, nil
}

func printCart(c cart.Cart) {
	if len(c) == 0 {
		fmt.Println("cart is empty")
		return
	}
	for _, it := range c {
		fmt.Printf("%-36s  %s (%s) x%d  %s ₺\n", it.ID, it.Title, it.Size, it.Quantity, it.LineTotal())
	}
	fmt.Printf("%d items, total %s ₺\n", c.TotalItems(), c.TotalPrice())
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
