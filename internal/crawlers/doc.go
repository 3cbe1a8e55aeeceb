// Package crawlers 提供抓取、准入控制和页面解析功能
//
// # 概述
//
// crawlers包负责"把一个URL变成一段响应体",以及"从响应体里找出下一批URL"。
// 写盘和爬取编排在core包中完成。
//
// # 核心组件
//
// ## RequestManager (请求准入控制)
//
// 全局唯一,限制同时在途的抓取数量(默认5)。超出上限的请求进入URLQueue按FIFO排队,
// 由固定数量的worker依次取出执行。槽位在defer中归还,抓取失败或panic都不会丢失并发容量。
//
//	rm := NewRequestManager(fetcher, 5)
//	defer rm.Close()
//
//	result, err := rm.Push(ctx, "http://tab.example.com/wudc/")
//
// 请求一旦入队就会被执行;ctx只决定调用方愿意等多久。
//
// ## StaticFetcher
//
// 基于Colly的HTTP抓取器。每次抓取在克隆出的collector上同步执行,
// 非2xx响应视为失败,deflate/br压缩的响应体会被解压。
//
// ## DynamicFetcher
//
// 基于go-rod的浏览器抓取器,页面渲染后取DOM。标签页由PagePool复用,
// 上限由ResourceMonitor根据系统可用内存和CPU负载计算。带扩展名的静态资源交给StaticFetcher。
//
// ## Page
//
// 基于goquery的HTML页面查询:
//   - NavLinks: 赛事主导航链接(ul.navbar-nav a)
//   - AssetPaths: link/script引用的静态资源
//   - TournamentSlugs: 站点首页赛事列表(.list-group.mt-2 a)
//
// 返回值都是站内路径,外站链接被丢弃。
//
// ## ExtractParticipantLinks
//
// 在参赛者列表/反馈进度页面的内嵌脚本中查找标记(默认vueData),
// 解码其后的第一个JSON数组,收集每一行popover中的link。
// 标记缺失或JSON损坏都视为"未找到",不会返回错误。
//
// # 并发安全
//
//   - URLQueue: sync.Mutex + sync.Cond
//   - RequestManager: 固定worker池 + sync.Mutex统计
//   - PagePool: channel + sync.Mutex
//   - ResourceMonitor: sync.RWMutex
package crawlers
