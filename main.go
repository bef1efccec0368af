package main

import (
	"github.com/LexiconIndonesia/website-crawler-service/cmd"

	_ "github.com/LexiconIndonesia/website-crawler-service/docs"
)

// @title          Website Crawler Service API
// @version        1.0
// @description    Fans batches of company websites out to crawl workers and returns the extracted data.
// @termsOfService http://swagger.io/terms/

// @contact.name  API Support
// @contact.email support@lexicon.id

// @license.name Apache 2.0
// @license.url  http://www.apache.org/licenses/LICENSE-2.0.html

// @host     localhost:8080
// @BasePath /
// @schemes  http https

func main() {
	cmd.Execute()
}
